// Package linkcheck probes remote folder links for public reachability.
// Verdicts feed the reconciliation engine; a link absent from the result
// map counts as unchecked.
package linkcheck

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/coursevault/coursevault/internal/config"
	"github.com/coursevault/coursevault/internal/entity"
)

const userAgent = "Mozilla/5.0 (compatible; coursevault/1.0)"

var refPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/file/d/([a-zA-Z0-9_-]{10,})`),
	regexp.MustCompile(`/folders/([a-zA-Z0-9_-]{10,})`),
	regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]{10,})`),
	regexp.MustCompile(`/open\?id=([a-zA-Z0-9_-]{10,})`),
	regexp.MustCompile(`^([a-zA-Z0-9_-]{25,})$`),
}

// ExtractRef pulls the stable folder/file identifier out of a link. Two
// slots pointing at the same identifier are duplicates even when the URL
// text differs.
func ExtractRef(link string) (string, bool) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", false
	}

	for _, pat := range refPatterns {
		if m := pat.FindStringSubmatch(link); m != nil {
			return m[1], true
		}
	}

	return "", false
}

// IsFolder reports whether the link names a folder rather than a file.
func IsFolder(link string) bool {
	return strings.Contains(link, "/folders/")
}

type Checker struct {
	client    *http.Client
	folderURL string
	fileURL   string
	workers   int
	log       *slog.Logger
}

func New(cfg *config.LinkCheckConfig, log *slog.Logger) *Checker {
	client := &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second}

	return NewWithClient(client,
		"https://drive.google.com/drive/folders/%s",
		"https://drive.google.com/uc?id=%s&export=download",
		cfg.Workers, log)
}

// NewWithClient builds a checker against explicit endpoints. Tests point it
// at a local server.
func NewWithClient(client *http.Client, folderURL, fileURL string, workers int, log *slog.Logger) *Checker {
	if workers < 1 {
		workers = 1
	}

	return &Checker{
		client:    client,
		folderURL: folderURL,
		fileURL:   fileURL,
		workers:   workers,
		log:       log.With(slog.String("item", "LinkChecker")),
	}
}

// Check probes every link with bounded concurrency and returns a verdict
// per link. Cancellation leaves the remaining links unchecked.
func (c *Checker) Check(ctx context.Context, links []string) map[string]entity.RemoteStatus {
	out := make(map[string]entity.RemoteStatus, len(links))
	if len(links) == 0 {
		return out
	}

	seen := make(map[string]struct{}, len(links))
	var unique []string
	for _, link := range links {
		if _, ok := seen[link]; ok {
			continue
		}
		seen[link] = struct{}{}
		unique = append(unique, link)
	}

	type verdict struct {
		link   string
		status entity.RemoteStatus
	}

	in := make(chan string, len(unique))
	results := make(chan verdict, len(unique))
	for _, link := range unique {
		in <- link
	}
	close(in)

	workers := c.workers
	if workers > len(unique) {
		workers = len(unique)
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for n := 0; n < workers; n++ {
		go func() {
			defer wg.Done()
			for link := range in {
				select {
				case <-ctx.Done():
					return
				default:
				}

				results <- verdict{link: link, status: c.checkOne(ctx, link)}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for v := range results {
		out[v.link] = v.status
	}

	return out
}

func (c *Checker) checkOne(ctx context.Context, link string) entity.RemoteStatus {
	ref, ok := ExtractRef(link)
	if !ok {
		return entity.RemoteBroken
	}

	url := fmt.Sprintf(c.fileURL, ref)
	if IsFolder(link) {
		url = fmt.Sprintf(c.folderURL, ref)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return entity.RemoteBroken
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn("Link probe failed", slog.String("link", link), slog.Any("error", err))

		return entity.RemoteBroken
	}
	defer resp.Body.Close()

	// A redirect to the login page means the content is private or gone.
	finalURL := resp.Request.URL.String()
	if strings.Contains(finalURL, "accounts.google.com") || strings.Contains(finalURL, "ServiceLogin") {
		return entity.RemoteMissing
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return entity.RemoteAvailable
	case resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusNotFound:
		return entity.RemoteMissing
	default:
		return entity.RemoteBroken
	}
}
