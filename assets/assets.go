// Package assets makes sure the embedding model files exist locally,
// downloading any that are missing.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"yashubustudio/obdresolver/resolver"
)

// DefaultUserAgent avoids 403 responses from model hosts that reject Go's default agent.
const DefaultUserAgent = "Mozilla/5.0"

// File is one asset and the URL it is fetched from when missing.
type File struct {
	Name string
	URL  string
	Path string
}

// Progress reports bytes written for one file. Total is -1 when the server
// did not send a length.
type Progress struct {
	Name  string
	Done  int64
	Total int64
}

// Downloader fetches missing assets over HTTP.
type Downloader struct {
	Client    *http.Client
	UserAgent string
	// OnProgress, when set, is called after every chunk written.
	OnProgress func(Progress)
	Logger     *log.Logger
}

// NewDownloader returns a downloader with the default client and agent.
func NewDownloader(logger *log.Logger, onProgress func(Progress)) *Downloader {
	return &Downloader{
		Client:     &http.Client{Timeout: 30 * time.Minute},
		UserAgent:  DefaultUserAgent,
		OnProgress: onProgress,
		Logger:     logger,
	}
}

// FilesFor lists the model and tokenizer files named by the configuration.
func FilesFor(emb resolver.EmbedderConfig, urls resolver.AssetsConfig) []File {
	var files []File
	if emb.ModelPath != "" {
		files = append(files, File{Name: "model", URL: urls.ModelURL, Path: emb.ModelPath})
	}
	if emb.TokenizerPath != "" {
		files = append(files, File{Name: "tokenizer", URL: urls.TokenizerURL, Path: emb.TokenizerPath})
	}
	return files
}

// Present reports whether path exists and is non-empty.
func Present(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}

// Ensure downloads every file that is not already present, in order, and
// stops at the first failure.
func (d *Downloader) Ensure(ctx context.Context, files ...File) error {
	for _, f := range files {
		if Present(f.Path) {
			d.logf("%s already present: %s", f.Name, f.Path)
			continue
		}
		if f.URL == "" {
			return fmt.Errorf("%s missing at %s and no download URL is configured", f.Name, f.Path)
		}
		if err := d.download(ctx, f); err != nil {
			return fmt.Errorf("download %s: %w", f.Name, err)
		}
		d.logf("%s downloaded to %s", f.Name, f.Path)
	}
	return nil
}

func (d *Downloader) download(ctx context.Context, f File) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return err
	}
	agent := d.UserAgent
	if agent == "" {
		agent = DefaultUserAgent
	}
	req.Header.Set("User-Agent", agent)

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.Path)+".*.part")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	src := &progressReader{
		r:       resp.Body,
		report:  d.OnProgress,
		current: Progress{Name: f.Name, Total: resp.ContentLength},
	}
	n, err := io.Copy(tmp, src)
	if err != nil {
		return fmt.Errorf("write %s: %w", f.Path, err)
	}
	if n == 0 {
		return errors.New("empty response body")
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func (d *Downloader) logf(format string, args ...any) {
	if d.Logger != nil {
		d.Logger.Printf(format, args...)
	}
}

type progressReader struct {
	r       io.Reader
	report  func(Progress)
	current Progress
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.current.Done += int64(n)
		if p.report != nil {
			p.report(p.current)
		}
	}
	return n, err
}
