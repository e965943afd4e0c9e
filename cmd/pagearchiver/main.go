package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/archivepage/pagearchiver/internal/archiver"
)

var rootCmd = &cobra.Command{
	Use:     "pagearchiver",
	Short:   "Archive a web page to a single MHTML file or an HTML+assets folder",
	Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
}

var mhtmlCmd = &cobra.Command{
	Use:   "mhtml <url> <dest>",
	Short: "Archive a page as a single .mht file",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runArchive(cmd, args[0], args[1], archiver.FormatMHTML)
	},
}

var folderCmd = &cobra.Command{
	Use:   "folder <url> <dest>",
	Short: "Archive a page as an HTML file plus an assets folder",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runArchive(cmd, args[0], args[1], archiver.FormatFolder)
	},
}

func loadConfig() archiver.Config {
	viper.SetDefault("concurrency", 4)
	viper.SetDefault("rate-per-sec", 8.0)

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // no config file is not an error

	return archiver.Config{
		Concurrency: viper.GetInt("concurrency"),
		RatePerSec:  viper.GetFloat64("rate-per-sec"),
	}
}

func init() {
	for _, cmd := range []*cobra.Command{mhtmlCmd, folderCmd} {
		cmd.Flags().Int("concurrency", 4, "Concurrent asset fetches")
		cmd.Flags().Float64("rate-per-sec", 8.0, "Asset fetches per second")
		_ = viper.BindPFlags(cmd.Flags())
	}
	rootCmd.AddCommand(mhtmlCmd, folderCmd)
}

func runArchive(cmd *cobra.Command, rawURL, dest string, format archiver.Format) {
	// Bind the running subcommand's own flags; init binds both subcommands
	// to the same keys and the last binding would otherwise win.
	_ = viper.BindPFlags(cmd.Flags())
	cfg := loadConfig()

	pageURL, err := url.Parse(rawURL)
	if err != nil {
		log.Fatalf("pagearchiver: invalid url %q: %v", rawURL, err)
	}
	if pageURL.Scheme == "" {
		pageURL.Scheme = "https"
	}
	if filepath.Ext(dest) == "" {
		dest += format.SuggestedExt()
	}

	rootContent, contentType, err := fetchRoot(cmd.Context(), pageURL)
	if err != nil {
		log.Fatalf("pagearchiver: fetching %s: %v", pageURL, err)
	}

	prog := archiver.NewAssetProgress()
	cfg.Confirm = confirmOverwrite
	cfg.OnAsset = prog.Inc
	cfg.Notify = func(msg string) {
		prog.Finish()
		fmt.Fprintln(os.Stderr, msg)
	}

	if err := archiver.StartDownloadChecked(cmd.Context(), pageURL, rootContent, contentType, dest, format, cfg); err != nil {
		log.Fatalf("pagearchiver: %v", err)
	}
}

// fetchRoot retrieves the page itself; everything discovered from it is
// then fetched by the download manager inside archiver.StartDownload.
func fetchRoot(ctx context.Context, pageURL *url.URL) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	contentType := resp.Header.Get("Content-Type")
	if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
		contentType = contentType[:idx]
	}
	if contentType == "" {
		contentType = "text/html"
	}
	return body, strings.TrimSpace(contentType), nil
}

// confirmOverwrite asks "<dest> exists. Overwrite?" on stdin/stdout, per
// the CLI's destination-collision contract.
func confirmOverwrite(dest string) bool {
	fmt.Fprintf(os.Stdout, "%s exists. Overwrite? [y/N] ", dest)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
