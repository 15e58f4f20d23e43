// Package report renders the reconciliation result as a markdown file and a
// styled HTML page. The markdown is the canonical artifact; the HTML page
// wraps a goldmark-rendered summary plus a colored availability table.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	_ "embed"

	"github.com/coursevault/coursevault/internal/config"
	"github.com/coursevault/coursevault/internal/entity"
	"github.com/spf13/afero"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

//go:embed templates/report.html
var pageTemplateContent string

type Clock func() time.Time

type Writer struct {
	fs    afero.Fs
	cfg   *config.ReportConfig
	md    goldmark.Markdown
	tmpl  *template.Template
	clock Clock
	log   *slog.Logger
}

func New(cfg *config.ReportConfig, log *slog.Logger) (*Writer, error) {
	return NewWithFS(afero.NewOsFs(), cfg, time.Now, log)
}

func NewWithFS(fsys afero.Fs, cfg *config.ReportConfig, clock Clock, log *slog.Logger) (*Writer, error) {
	tmpl, err := template.New("report").Parse(pageTemplateContent)
	if err != nil {
		return nil, fmt.Errorf("cannot parse report template: %w", err)
	}

	md := goldmark.New(
		goldmark.WithExtensions(extension.Table),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
		),
	)

	return &Writer{
		fs:    fsys,
		cfg:   cfg,
		md:    md,
		tmpl:  tmpl,
		clock: clock,
		log:   log.With(slog.String("item", "Report")),
	}, nil
}

// Write renders both artifacts for one run and returns their paths.
func (w *Writer) Write(runID string, avails []*entity.CourseAvailability) (string, string, error) {
	if err := w.fs.MkdirAll(w.cfg.Dir, 0o755); err != nil {
		return "", "", fmt.Errorf("cannot create report dir: %w", err)
	}

	mdPath := filepath.Join(w.cfg.Dir, "report-"+runID+".md")
	htmlPath := filepath.Join(w.cfg.Dir, "report-"+runID+".html")

	mdBody := w.buildMarkdown(runID, avails)
	if err := afero.WriteFile(w.fs, mdPath, []byte(mdBody), 0o644); err != nil {
		return "", "", fmt.Errorf("cannot write markdown report: %w", err)
	}

	page, err := w.buildPage(runID, avails)
	if err != nil {
		return "", "", err
	}
	if err := afero.WriteFile(w.fs, htmlPath, page, 0o644); err != nil {
		return "", "", fmt.Errorf("cannot write html report: %w", err)
	}

	w.log.Info("Report written",
		slog.String("markdown", mdPath),
		slog.String("html", htmlPath),
		slog.Int("courses", len(avails)))

	return mdPath, htmlPath, nil
}

type summary struct {
	Courses  int
	Complete int
	Partial  int
	None     int
}

func summarize(avails []*entity.CourseAvailability) summary {
	s := summary{Courses: len(avails)}
	for _, a := range avails {
		switch a.Class {
		case entity.RowComplete:
			s.Complete++
		case entity.RowPartial:
			s.Partial++
		case entity.RowNone:
			s.None++
		}
	}

	return s
}

func (w *Writer) buildMarkdown(runID string, avails []*entity.CourseAvailability) string {
	var b strings.Builder

	s := summarize(avails)
	fmt.Fprintf(&b, "# Course availability\n\n")
	fmt.Fprintf(&b, "Run `%s`, generated %s.\n\n", runID, w.clock().Format(time.RFC1123))
	fmt.Fprintf(&b, "**%d** courses: %d complete, %d partial, %d with nothing found.\n\n",
		s.Courses, s.Complete, s.Partial, s.None)

	b.WriteString("| Course | Status |")
	for _, at := range entity.AssetOrder {
		fmt.Fprintf(&b, " %s |", at)
	}
	b.WriteString("\n|---|---|")
	b.WriteString(strings.Repeat("---|", len(entity.AssetOrder)))
	b.WriteString("\n")

	for _, a := range avails {
		fmt.Fprintf(&b, "| %s | %s |", a.Course, a.Class)
		for _, rec := range orderedRecords(a) {
			fmt.Fprintf(&b, " %s |", cellText(rec))
		}
		b.WriteString("\n")
	}

	return b.String()
}

type pageRow struct {
	Course string
	Class  string
	Cells  []pageCell
}

type pageCell struct {
	Text  string
	Class string
}

type pageData struct {
	Title       string
	RunID       string
	GeneratedAt string
	SummaryHTML template.HTML
	Assets      []entity.AssetType
	Rows        []pageRow
}

func (w *Writer) buildPage(runID string, avails []*entity.CourseAvailability) ([]byte, error) {
	s := summarize(avails)
	summaryMD := fmt.Sprintf("**%d** courses reconciled: **%d** complete, **%d** partial, **%d** with nothing found.",
		s.Courses, s.Complete, s.Partial, s.None)

	var summaryHTML bytes.Buffer
	if err := w.md.Convert([]byte(summaryMD), &summaryHTML); err != nil {
		return nil, fmt.Errorf("cannot render summary: %w", err)
	}

	data := pageData{
		Title:       "Course availability",
		RunID:       runID,
		GeneratedAt: w.clock().Format(time.RFC1123),
		SummaryHTML: template.HTML(summaryHTML.String()),
		Assets:      entity.AssetOrder,
	}

	for _, a := range avails {
		row := pageRow{Course: a.Course, Class: string(a.Class)}
		for _, rec := range orderedRecords(a) {
			row.Cells = append(row.Cells, pageCell{Text: cellText(rec), Class: cellClass(rec)})
		}
		data.Rows = append(data.Rows, row)
	}

	var out bytes.Buffer
	if err := w.tmpl.Execute(&out, &data); err != nil {
		return nil, fmt.Errorf("cannot build report page: %w", err)
	}

	return out.Bytes(), nil
}

// orderedRecords returns the records in the fixed asset order, filling gaps
// with an absent record so every row has the same shape.
func orderedRecords(a *entity.CourseAvailability) []entity.AvailabilityRecord {
	byAsset := make(map[entity.AssetType]entity.AvailabilityRecord, len(a.Records))
	for _, rec := range a.Records {
		byAsset[rec.Asset] = rec
	}

	out := make([]entity.AvailabilityRecord, 0, len(entity.AssetOrder))
	for _, at := range entity.AssetOrder {
		rec, ok := byAsset[at]
		if !ok {
			rec = entity.AvailabilityRecord{
				Course:       a.Course,
				Asset:        at,
				LocalStatus:  entity.LocalAbsent,
				RemoteStatus: entity.RemoteAbsentLink,
			}
		}
		out = append(out, rec)
	}

	return out
}

func cellText(rec entity.AvailabilityRecord) string {
	switch rec.LocalStatus {
	case entity.LocalFound:
		return "found"
	case entity.LocalFoundViaTransfer:
		return "fetched"
	}

	switch rec.RemoteStatus {
	case entity.RemoteAvailable:
		return "remote only"
	case entity.RemoteMissing:
		return "missing"
	case entity.RemoteBroken:
		return "broken link"
	case entity.RemoteAbsentLink:
		return "no link"
	}

	return "unchecked"
}

func cellClass(rec entity.AvailabilityRecord) string {
	switch rec.LocalStatus {
	case entity.LocalFound, entity.LocalFoundViaTransfer:
		return "ok"
	}

	switch rec.RemoteStatus {
	case entity.RemoteAvailable:
		return "remote"
	case entity.RemoteMissing:
		return "bad"
	case entity.RemoteBroken:
		return "warn"
	case entity.RemoteAbsentLink:
		return "none"
	}

	return "unk"
}
