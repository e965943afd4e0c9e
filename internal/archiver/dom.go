package archiver

import (
	"bytes"

	"golang.org/x/net/html"
)

// Element is one DOM node matched by Document.Find. Implementations need
// only support the handful of operations the coordinator performs: reading
// and writing a single attribute, and reading/writing the element's inner
// text (used only for <style>, whose content is CSS, not markup).
type Element interface {
	// TagName is the lowercase element name ("link", "script", ...).
	TagName() string
	// Attr returns the named attribute's value and whether it is present.
	Attr(name string) (string, bool)
	// SetAttr sets or replaces the named attribute's value.
	SetAttr(name, value string)
	// InnerText returns the element's text content (the concatenation of
	// its text-node children).
	InnerText() string
	// SetInnerText replaces the element's children with a single text node.
	SetInnerText(text string)
}

// Document is the DOM consumer interface the coordinator needs from an
// HTML rendering engine: find elements by tag, mutate them, and serialize
// the whole tree back to bytes.
type Document interface {
	// Find returns every element in document order whose tag is one of
	// tags, plus — when "[style]" is included in tags — every element
	// carrying a style attribute, regardless of its own tag.
	Find(tags ...string) []Element
	// Serialize renders the full document tree to UTF-8 HTML bytes.
	Serialize() ([]byte, error)
}

// ParseDocument parses data as HTML and returns a Document backed by
// golang.org/x/net/html.
func ParseDocument(data []byte) (Document, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return &htmlDocument{root: doc}, nil
}

type htmlDocument struct {
	root *html.Node
}

func (d *htmlDocument) Find(tags ...string) []Element {
	want := make(map[string]bool, len(tags))
	wantStyleAttr := false
	for _, t := range tags {
		if t == "[style]" {
			wantStyleAttr = true
			continue
		}
		want[t] = true
	}

	var out []Element
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			matched := want[n.Data]
			if !matched && wantStyleAttr {
				if _, ok := findAttr(n, "style"); ok {
					matched = true
				}
			}
			if matched {
				out = append(out, &htmlElement{node: n})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.root)
	return out
}

func (d *htmlDocument) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, d.root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type htmlElement struct {
	node *html.Node
}

func (e *htmlElement) TagName() string { return e.node.Data }

func (e *htmlElement) Attr(name string) (string, bool) {
	return findAttr(e.node, name)
}

func (e *htmlElement) SetAttr(name, value string) {
	for i, a := range e.node.Attr {
		if a.Key == name {
			e.node.Attr[i].Val = value
			return
		}
	}
	e.node.Attr = append(e.node.Attr, html.Attribute{Key: name, Val: value})
}

func (e *htmlElement) InnerText() string {
	var buf bytes.Buffer
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			buf.WriteString(c.Data)
		}
	}
	return buf.String()
}

func (e *htmlElement) SetInnerText(text string) {
	for c := e.node.FirstChild; c != nil; {
		next := c.NextSibling
		e.node.RemoveChild(c)
		c = next
	}
	e.node.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

func findAttr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}
