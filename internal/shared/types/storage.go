package types

import "time"

// Summary describes a saved bundle without its markup
type Summary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Type       string    `json:"type,omitempty"`
	AgeGroup   string    `json:"ageGroup,omitempty"`
	Difficulty string    `json:"difficulty,omitempty"`
	Theme      string    `json:"theme,omitempty"`
	FileName   string    `json:"fileName,omitempty"`
	FileSize   int64     `json:"fileSize"`
	Thumbnail  string    `json:"thumbnail,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// StorageStats reports the footprint of a store
type StorageStats struct {
	Count     int    `json:"totalGames"`
	TotalSize int64  `json:"totalSize"`
	Location  string `json:"storagePath"`
}

// BatchResult reports the outcome of a batch delete
type BatchResult struct {
	SuccessCount int `json:"successCount"`
	FailCount    int `json:"failCount"`
}

// Model selects the generation backend
type Model string

const (
	ModelDefault Model = "default"
	ModelAltA    Model = "alt-model-a"
	ModelAltB    Model = "alt-model-b"
	ModelAltC    Model = "alt-model-c"
)

// Models lists every accepted model selector
func Models() []Model {
	return []Model{ModelDefault, ModelAltA, ModelAltB, ModelAltC}
}

// Valid reports whether m is a known model selector
func (m Model) Valid() bool {
	for _, known := range Models() {
		if m == known {
			return true
		}
	}
	return false
}

// GenerationResult is the outcome of a generation request
type GenerationResult struct {
	Success   bool
	SessionID string
	Message   string
	Bundle    *Bundle
	Agent     Agent
	Error     string
}
