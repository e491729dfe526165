package types

// Wire tags used on the host/sandbox channel
const (
	MessageAlert   = "game-alert"
	MessageConfirm = "game-confirm"
	MessageStatus  = "game-status"

	StatusScoreUpdate = "score-update"
)

// HostCallKind names an intercepted host-blocking call
type HostCallKind string

const (
	HostCallAlert   HostCallKind = "alert"
	HostCallConfirm HostCallKind = "confirm"
)

// ChannelMessage is the closed set of messages accepted from a sandbox
type ChannelMessage interface {
	channelMessage()
}

// HostCallIntercepted reports an alert or confirm issued by sandboxed code
type HostCallIntercepted struct {
	Kind    HostCallKind
	Message string
}

// StatusUpdate carries a status report; only score updates exist today
type StatusUpdate struct {
	Status  string
	Payload ScoreDelta
}

func (HostCallIntercepted) channelMessage() {}
func (StatusUpdate) channelMessage()        {}

// Envelope is a raw inbound message tagged with the identity of the
// execution context that emitted it
type Envelope struct {
	ContextID string
	Raw       []byte
}

// ContextHandle is a live isolated execution context
type ContextHandle interface {
	ID() string
	Messages() <-chan Envelope
	Close() error
}

// ContextEvents receives the one-shot outcome of opening a context
type ContextEvents struct {
	Ready   func()
	Failure func(err error)
}
