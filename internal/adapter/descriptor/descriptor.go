// Package descriptor parses optional course.md files found inside on-disk
// course folders. The yaml frontmatter carries a display title and alias
// names that the matcher may score in place of the folder name.
package descriptor

import (
	"bytes"
	"fmt"

	"github.com/coursevault/coursevault/internal/entity"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"
	"go.abhg.dev/goldmark/frontmatter"
)

type meta struct {
	Title   string   `yaml:"title"`
	Aliases []string `yaml:"aliases"`
	Enabled *bool    `yaml:"enabled"`
}

type Parser struct {
	md goldmark.Markdown
}

func NewParser() *Parser {
	return &Parser{
		md: goldmark.New(
			goldmark.WithExtensions(
				&frontmatter.Extender{},
			),
		),
	}
}

// Parse reads a course.md body. A file without frontmatter yields an enabled
// descriptor with no title or aliases.
func (p *Parser) Parse(data []byte) (*entity.Descriptor, error) {
	var buf bytes.Buffer
	ctx := parser.NewContext()
	if err := p.md.Convert(data, &buf, parser.WithContext(ctx)); err != nil {
		return nil, fmt.Errorf("cannot convert descriptor markdown: %w", err)
	}

	desc := &entity.Descriptor{Enabled: true}

	fm := frontmatter.Get(ctx)
	if fm == nil {
		return desc, nil
	}

	var m meta
	if err := fm.Decode(&m); err != nil {
		return nil, fmt.Errorf("cannot decode descriptor frontmatter: %w", err)
	}

	desc.Title = m.Title
	desc.Aliases = m.Aliases
	if m.Enabled != nil {
		desc.Enabled = *m.Enabled
	}

	return desc, nil
}
