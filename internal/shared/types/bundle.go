package types

import "time"

// Metadata describes a bundle. Every field is optional.
type Metadata struct {
	Title      string `json:"title,omitempty"`
	Type       string `json:"type,omitempty"`
	AgeGroup   string `json:"ageGroup,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
	Theme      string `json:"theme,omitempty"`
	Generated  bool   `json:"generated,omitempty"`
}

// AgentSource tells who authored a generated bundle
type AgentSource string

const (
	AgentSystem AgentSource = "system"
	AgentLLM    AgentSource = "llm"
)

// Agent attributes a bundle to the agent that produced it
type Agent struct {
	Name   string      `json:"agentName,omitempty"`
	Source AgentSource `json:"agentSource,omitempty"`
	Model  string      `json:"modelName,omitempty"`
}

// Bundle is the unit of embeddable content. Markup is untrusted and is only
// ever executed after passing through the injector.
type Bundle struct {
	id        string
	markup    string
	metadata  Metadata
	config    map[string]interface{}
	agent     Agent
	createdAt time.Time
}

// BundleOption configures optional bundle fields at construction
type BundleOption func(*Bundle)

// WithID sets the bundle identifier
func WithID(id string) BundleOption {
	return func(b *Bundle) { b.id = id }
}

// WithConfig attaches the structured generation config
func WithConfig(cfg map[string]interface{}) BundleOption {
	return func(b *Bundle) {
		if cfg == nil {
			return
		}
		b.config = make(map[string]interface{}, len(cfg))
		for k, v := range cfg {
			b.config[k] = v
		}
	}
}

// WithAgent attaches agent attribution
func WithAgent(agent Agent) BundleOption {
	return func(b *Bundle) { b.agent = agent }
}

// WithCreatedAt overrides the creation timestamp
func WithCreatedAt(t time.Time) BundleOption {
	return func(b *Bundle) { b.createdAt = t }
}

// NewBundle creates an immutable bundle
func NewBundle(markup string, meta Metadata, opts ...BundleOption) *Bundle {
	b := &Bundle{
		markup:    markup,
		metadata:  meta,
		createdAt: time.Now(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ID returns the bundle identifier, empty when not persisted yet
func (b *Bundle) ID() string { return b.id }

// Markup returns the original, non-hardened document source
func (b *Bundle) Markup() string { return b.markup }

// Metadata returns the descriptive fields
func (b *Bundle) Metadata() Metadata { return b.metadata }

// Agent returns the generation attribution
func (b *Bundle) Agent() Agent { return b.agent }

// CreatedAt returns the creation timestamp
func (b *Bundle) CreatedAt() time.Time { return b.createdAt }

// Config returns a copy of the structured generation config
func (b *Bundle) Config() map[string]interface{} {
	if b.config == nil {
		return nil
	}
	cfg := make(map[string]interface{}, len(b.config))
	for k, v := range b.config {
		cfg[k] = v
	}
	return cfg
}

// Title returns the metadata title or the given fallback
func (b *Bundle) Title(fallback string) string {
	if b.metadata.Title != "" {
		return b.metadata.Title
	}
	return fallback
}

// HardenedDocument is a bundle's markup after shim and layout injection.
// Only the inject package produces values of this type from raw markup.
type HardenedDocument string

// String returns the document source
func (d HardenedDocument) String() string { return string(d) }
