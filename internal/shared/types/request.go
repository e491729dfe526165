package types

// GenerateRequest asks the generation collaborator for a new bundle
type GenerateRequest struct {
	Message   string                 `json:"userInput" binding:"required"`
	Model     Model                  `json:"model,omitempty"`
	SessionID string                 `json:"sessionId,omitempty"`
	Options   map[string]interface{} `json:"options,omitempty"`
}

// SaveRequest is a bundle submitted for persistence
type SaveRequest struct {
	Title      string                 `json:"title"`
	Type       string                 `json:"type,omitempty"`
	AgeGroup   string                 `json:"ageGroup,omitempty"`
	Difficulty string                 `json:"difficulty,omitempty"`
	Theme      string                 `json:"theme,omitempty"`
	HTML       string                 `json:"html" binding:"required"`
	Config     map[string]interface{} `json:"config,omitempty"`
}

// Bundle converts the request into an immutable bundle
func (r SaveRequest) Bundle() *Bundle {
	return NewBundle(r.HTML, Metadata{
		Title:      r.Title,
		Type:       r.Type,
		AgeGroup:   r.AgeGroup,
		Difficulty: r.Difficulty,
		Theme:      r.Theme,
	}, WithConfig(r.Config))
}

// MarkupRequest carries raw markup for analysis or injection
type MarkupRequest struct {
	HTML string `json:"html" binding:"required"`
}

// WSMessage is a frame on the host websocket
type WSMessage struct {
	Type      string                 `json:"type"`
	GameID    string                 `json:"gameId,omitempty"`
	ContextID string                 `json:"contextId,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Active    *bool                  `json:"active,omitempty"`
}
