package remote

import (
	"strings"
	"time"

	"github.com/GriffinCanCode/gamehost/internal/shared/types"
	"github.com/bytedance/sonic"
)

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
}

// wireTime accepts the timestamp formats the storage service emits: the
// formatted "yyyy-MM-dd HH:mm:ss" form, ISO local date-times and RFC 3339
type wireTime time.Time

func (t *wireTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := sonic.Unmarshal(data, &s); err != nil || s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			*t = wireTime(parsed)
			return nil
		}
	}
	return nil
}

// savedGame is the storage service's bundle shape. Config travels as a JSON
// encoded string.
type savedGame struct {
	ID         string    `json:"id,omitempty"`
	Title      string    `json:"title"`
	Type       string    `json:"type,omitempty"`
	AgeGroup   string    `json:"ageGroup,omitempty"`
	Difficulty string    `json:"difficulty,omitempty"`
	Theme      string    `json:"theme,omitempty"`
	HTML       string    `json:"html,omitempty"`
	Config     string    `json:"config,omitempty"`
	FileName   string    `json:"fileName,omitempty"`
	FileSize   int64     `json:"fileSize,omitempty"`
	CreatedAt  *wireTime `json:"createdAt,omitempty"`
	UpdatedAt  *wireTime `json:"updatedAt,omitempty"`
}

type envelope struct {
	Success      bool   `json:"success"`
	Message      string `json:"message,omitempty"`
	Error        string `json:"error,omitempty"`
	GameID       string `json:"gameId,omitempty"`
	Count        int    `json:"count,omitempty"`
	SuccessCount int    `json:"successCount,omitempty"`
	FailCount    int    `json:"failCount,omitempty"`
}

type listEnvelope struct {
	envelope
	Data []savedGame `json:"data"`
}

type gameEnvelope struct {
	envelope
	Data *savedGame `json:"data"`
}

type statsEnvelope struct {
	envelope
	Data *types.StorageStats `json:"data"`
}

func fromBundle(b *types.Bundle, defaultTitle string) savedGame {
	meta := b.Metadata()
	g := savedGame{
		ID:         b.ID(),
		Title:      b.Title(defaultTitle),
		Type:       meta.Type,
		AgeGroup:   meta.AgeGroup,
		Difficulty: meta.Difficulty,
		Theme:      meta.Theme,
		HTML:       b.Markup(),
		Config:     "{}",
	}
	if cfg := b.Config(); cfg != nil {
		if data, err := sonic.Marshal(cfg); err == nil {
			g.Config = string(data)
		}
	}
	return g
}

func (g savedGame) summary() types.Summary {
	return types.Summary{
		ID:         g.ID,
		Title:      g.Title,
		Type:       g.Type,
		AgeGroup:   g.AgeGroup,
		Difficulty: g.Difficulty,
		Theme:      g.Theme,
		FileName:   g.FileName,
		FileSize:   g.FileSize,
		CreatedAt:  g.CreatedAt.time(),
		UpdatedAt:  g.UpdatedAt.time(),
	}
}

func (g savedGame) bundle() *types.Bundle {
	var cfg map[string]interface{}
	if s := strings.TrimSpace(g.Config); s != "" {
		_ = sonic.UnmarshalString(s, &cfg)
	}
	opts := []types.BundleOption{types.WithID(g.ID), types.WithConfig(cfg)}
	if created := g.CreatedAt.time(); !created.IsZero() {
		opts = append(opts, types.WithCreatedAt(created))
	}
	return types.NewBundle(g.HTML, types.Metadata{
		Title:      g.Title,
		Type:       g.Type,
		AgeGroup:   g.AgeGroup,
		Difficulty: g.Difficulty,
		Theme:      g.Theme,
	}, opts...)
}

func (t *wireTime) time() time.Time {
	if t == nil {
		return time.Time{}
	}
	return time.Time(*t)
}
