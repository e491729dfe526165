package storage

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/GriffinCanCode/gamehost/internal/shared/types"
	"github.com/antchfx/htmlquery"
)

const (
	// MaxSaved caps the number of bundles a local store keeps
	MaxSaved = 20

	DefaultTitle     = "未命名游戏"
	DefaultType      = "未知"
	DefaultThumbnail = "游戏预览"

	thumbnailLength = 50
)

var (
	ErrNotFound    = errors.New("bundle not found")
	ErrInvalidID   = errors.New("invalid bundle id")
	ErrNotMarkup   = errors.New("content is not markup")
	ErrUnavailable = errors.New("storage unavailable")
)

// Store persists bundles. Implementations must be safe for concurrent use.
type Store interface {
	Save(ctx context.Context, bundle *types.Bundle) (string, error)
	List(ctx context.Context) ([]types.Summary, error)
	Get(ctx context.Context, id string) (*types.Bundle, error)
	Delete(ctx context.Context, id string) (bool, error)
	DeleteMany(ctx context.Context, ids []string) (types.BatchResult, error)
	Stats(ctx context.Context) (types.StorageStats, error)
}

// Record is the persisted form of a bundle: the summary plus everything
// needed to rebuild it. HTML is left empty in sidecar files.
type Record struct {
	types.Summary
	HTML      string                 `json:"html,omitempty"`
	Config    map[string]interface{} `json:"config,omitempty"`
	Agent     *types.Agent           `json:"agent,omitempty"`
	Generated bool                   `json:"generated,omitempty"`
}

// NewRecord captures a bundle under the given id
func NewRecord(id string, b *types.Bundle, now time.Time) Record {
	meta := b.Metadata()
	rec := Record{
		Summary: types.Summary{
			ID:         id,
			Title:      b.Title(DefaultTitle),
			Type:       meta.Type,
			AgeGroup:   meta.AgeGroup,
			Difficulty: meta.Difficulty,
			Theme:      meta.Theme,
			FileSize:   int64(len(b.Markup())),
			Thumbnail:  Thumbnail(b.Markup()),
			CreatedAt:  b.CreatedAt(),
			UpdatedAt:  now,
		},
		HTML:      b.Markup(),
		Config:    b.Config(),
		Generated: meta.Generated,
	}
	if rec.Type == "" {
		rec.Type = DefaultType
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if agent := b.Agent(); agent != (types.Agent{}) {
		rec.Agent = &agent
	}
	return rec
}

// Bundle rebuilds the bundle. The markup is taken from html, not the record.
func (r Record) Bundle(html string) *types.Bundle {
	opts := []types.BundleOption{
		types.WithID(r.ID),
		types.WithConfig(r.Config),
		types.WithCreatedAt(r.CreatedAt),
	}
	if r.Agent != nil {
		opts = append(opts, types.WithAgent(*r.Agent))
	}
	return types.NewBundle(html, types.Metadata{
		Title:      r.Title,
		Type:       r.Type,
		AgeGroup:   r.AgeGroup,
		Difficulty: r.Difficulty,
		Theme:      r.Theme,
		Generated:  r.Generated,
	}, opts...)
}

// Thumbnail returns the text of the first heading, capped at 50 characters
func Thumbnail(markup string) string {
	doc, err := htmlquery.Parse(strings.NewReader(markup))
	if err != nil {
		return DefaultThumbnail
	}
	node := htmlquery.FindOne(doc, "//*[self::h1 or self::h2 or self::h3 or self::h4 or self::h5 or self::h6]")
	if node == nil {
		return DefaultThumbnail
	}
	text := strings.TrimSpace(htmlquery.InnerText(node))
	if text == "" {
		return DefaultThumbnail
	}
	if utf8.RuneCountInString(text) > thumbnailLength {
		text = string([]rune(text)[:thumbnailLength])
	}
	return text
}
