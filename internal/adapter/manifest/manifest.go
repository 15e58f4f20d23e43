// Package manifest fetches the master sheet and materializes Course
// entities. The sheet is consumed through its CSV export and cached on disk
// with an age-based policy; column positions are resolved once per load from
// the declarative schema in the configuration.
package manifest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/coursevault/coursevault/internal/common"
	"github.com/coursevault/coursevault/internal/config"
	"github.com/coursevault/coursevault/internal/entity"
	"github.com/coursevault/coursevault/internal/util"
	"github.com/spf13/afero"
)

const userAgent = "Mozilla/5.0 (compatible; coursevault/1.0)"

var sheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9_-]+)`)

type Clock func() time.Time

type Loader struct {
	fs     afero.Fs
	client *http.Client
	cfg    *config.ManifestConfig
	clock  Clock
	log    *slog.Logger
}

func New(cfg *config.ManifestConfig, log *slog.Logger) *Loader {
	return NewWithDeps(afero.NewOsFs(), &http.Client{Timeout: 60 * time.Second}, cfg, time.Now, log)
}

func NewWithDeps(fsys afero.Fs, client *http.Client, cfg *config.ManifestConfig, clock Clock, log *slog.Logger) *Loader {
	return &Loader{
		fs:     fsys,
		client: client,
		cfg:    cfg,
		clock:  clock,
		log:    log.With(slog.String("item", "ManifestLoader")),
	}
}

// Load returns the normalized course list. A cached sheet younger than the
// configured age is reused; a failed fetch falls back to any cached copy and
// is fatal only when no cache exists.
func (l *Loader) Load(ctx context.Context, forceRefresh bool) ([]*entity.Course, error) {
	data, err := l.fetch(ctx, forceRefresh)
	if err != nil {
		return nil, err
	}

	courses, err := l.parse(data)
	if err != nil {
		return nil, err
	}

	l.log.Info("Manifest loaded", slog.Int("courses", len(courses)))

	return courses, nil
}

// exportURL turns a sheet URL into its CSV export endpoint. URLs that do not
// look like a sheet are used verbatim, which also covers mirrors.
func exportURL(sheetURL string) string {
	if m := sheetIDPattern.FindStringSubmatch(sheetURL); m != nil {
		return fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s/export?format=csv", m[1])
	}

	return sheetURL
}

func (l *Loader) cachePath() string {
	id := util.GetIDFromString(&l.cfg.SheetURL)

	return filepath.Join(l.cfg.CacheDir, "manifest-"+id+".csv")
}

func (l *Loader) fetch(ctx context.Context, forceRefresh bool) ([]byte, error) {
	if l.cfg.SheetURL == "" {
		return nil, fmt.Errorf("%w: no sheet url configured", common.ErrManifestUnavailable)
	}

	path := l.cachePath()

	if !forceRefresh {
		if data := l.freshCache(path); data != nil {
			return data, nil
		}
	}

	data, err := l.download(ctx)
	if err != nil {
		if cached, readErr := afero.ReadFile(l.fs, path); readErr == nil {
			l.log.Warn("Manifest fetch failed, using cached copy", slog.Any("error", err))

			return cached, nil
		}

		return nil, fmt.Errorf("%w: %v", common.ErrManifestUnavailable, err)
	}

	if err := l.fs.MkdirAll(l.cfg.CacheDir, 0o755); err == nil {
		if err := afero.WriteFile(l.fs, path, data, 0o644); err != nil {
			l.log.Warn("Cannot cache manifest", slog.String("path", path), slog.Any("error", err))
		}
	}

	return data, nil
}

func (l *Loader) freshCache(path string) []byte {
	info, err := l.fs.Stat(path)
	if err != nil {
		return nil
	}

	age := l.clock().Sub(info.ModTime())
	if age > time.Duration(l.cfg.CacheHours*float64(time.Hour)) {
		return nil
	}

	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil
	}

	l.log.Info("Using cached manifest", slog.String("path", path), slog.Duration("age", age))

	return data
}

func (l *Loader) download(ctx context.Context) ([]byte, error) {
	url := exportURL(l.cfg.SheetURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("cannot build manifest request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cannot fetch manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("manifest fetch returned status %d", resp.StatusCode)
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		return nil, fmt.Errorf("sheet appears to be private; share it as anyone-with-the-link")
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cannot read manifest body: %w", err)
	}

	l.log.Info("Manifest downloaded", slog.Int("bytes", len(data)))

	return data, nil
}

// parse resolves the column schema against the header row and turns every
// data row into a Course. Rows are deduplicated by case-insensitive name,
// first occurrence wins.
func (l *Loader) parse(data []byte) ([]*entity.Course, error) {
	r := csv.NewReader(strings.NewReader(string(data)))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read header: %v", common.ErrManifestSchemaBroken, err)
	}

	colIdx := make(map[string]int, len(header))
	for i, label := range header {
		colIdx[strings.TrimSpace(label)] = i
	}

	schema := &l.cfg.Columns
	courseCol, ok := colIdx[schema.Course]
	if !ok {
		return nil, fmt.Errorf("%w: column %q not found", common.ErrManifestSchemaBroken, schema.Course)
	}

	assetCols := make(map[entity.AssetType]int, len(schema.Assets))
	for _, at := range entity.AssetOrder {
		label, ok := schema.Assets[at]
		if !ok {
			continue
		}
		if idx, exists := colIdx[label]; exists {
			assetCols[at] = idx
		} else {
			l.log.Warn("Asset column not present in sheet", slog.String("label", label))
		}
	}

	cell := func(row []string, idx int, ok bool) string {
		if !ok || idx >= len(row) {
			return ""
		}

		return strings.TrimSpace(row[idx])
	}

	semCol, semOK := colIdx[schema.Semester]
	termCol, termOK := colIdx[schema.Term]
	statusCol, statusOK := colIdx[schema.Status]

	seen := make(map[string]struct{})
	var courses []*entity.Course

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			l.log.Warn("Skipping malformed row", slog.Any("error", err))

			continue
		}

		name := cell(row, courseCol, true)
		if name == "" || isPlaceholder(name) {
			continue
		}

		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		course := &entity.Course{
			Name:     name,
			Semester: cell(row, semCol, semOK),
			Term:     cell(row, termCol, termOK),
			Status:   cell(row, statusCol, statusOK),
			Links:    make(map[entity.AssetType]string),
		}

		for at, idx := range assetCols {
			if link := cell(row, idx, true); link != "" {
				course.Links[at] = link
			}
		}

		courses = append(courses, course)
	}

	return courses, nil
}

func isPlaceholder(name string) bool {
	switch strings.ToLower(name) {
	case "nan", "none", "n/a", "-":
		return true
	}

	return false
}
