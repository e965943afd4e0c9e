package archiver

import (
	"strings"
	"testing"
)

func TestParseDocumentFind(t *testing.T) {
	html := `<html><head><link rel="stylesheet" href="a.css"></head>
<body><img src="b.png"><div style="color:red">hi</div><style>body{}</style></body></html>`

	doc, err := ParseDocument([]byte(html))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}

	links := doc.Find("link", "script", "img")
	if len(links) != 2 {
		t.Fatalf("Find(link,script,img) returned %d elements, want 2", len(links))
	}
	if links[0].TagName() != "link" || links[1].TagName() != "img" {
		t.Errorf("unexpected tags: %v, %v", links[0].TagName(), links[1].TagName())
	}

	styled := doc.Find("[style]")
	if len(styled) != 1 {
		t.Fatalf("Find([style]) returned %d elements, want 1", len(styled))
	}
	if v, ok := styled[0].Attr("style"); !ok || v != "color:red" {
		t.Errorf("style attr = %q, %v", v, ok)
	}

	styleEls := doc.Find("style")
	if len(styleEls) != 1 {
		t.Fatalf("Find(style) returned %d elements, want 1", len(styleEls))
	}
	if styleEls[0].InnerText() != "body{}" {
		t.Errorf("InnerText = %q", styleEls[0].InnerText())
	}
}

func TestElementSetAttrAndInnerText(t *testing.T) {
	doc, err := ParseDocument([]byte(`<html><body><img src="old.png"><style>old</style></body></html>`))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}

	imgs := doc.Find("img")
	imgs[0].SetAttr("src", "new.png")
	if v, _ := imgs[0].Attr("src"); v != "new.png" {
		t.Errorf("src after SetAttr = %q", v)
	}

	styles := doc.Find("style")
	styles[0].SetInnerText("new{}")
	if styles[0].InnerText() != "new{}" {
		t.Errorf("InnerText after SetInnerText = %q", styles[0].InnerText())
	}

	out, err := doc.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if !strings.Contains(string(out), "new.png") || !strings.Contains(string(out), "new{}") {
		t.Errorf("serialized document missing mutations: %s", out)
	}
}
