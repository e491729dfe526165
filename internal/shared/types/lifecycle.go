package types

// LifecycleState is the state of the embedded content
type LifecycleState string

const (
	StateEmpty   LifecycleState = "empty"
	StateLoading LifecycleState = "loading"
	StateReady   LifecycleState = "ready"
	StateError   LifecycleState = "error"
)

// Artifact is a standalone exported file
type Artifact struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"-"`
}
