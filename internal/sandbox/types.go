package sandbox

import (
	"errors"
	"time"
)

var (
	ErrPoolClosed     = errors.New("sandbox pool is closed")
	ErrAcquireTimeout = errors.New("sandbox acquisition timeout")
	ErrTimeout        = errors.New("sandbox execution timeout exceeded")
	ErrScriptFailed   = errors.New("sandboxed script failed")
	ErrPanic          = errors.New("sandbox panicked")
	ErrClosed         = errors.New("execution context closed")
)

// DefaultUserAgent is reported by navigator.userAgent unless configured
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) gamehost/1.0"

// Config defines sandbox configuration
type Config struct {
	// Whole-document execution budget
	Timeout time.Duration `envconfig:"TIMEOUT" default:"5s" yaml:"timeout" toml:"-"`
	// Wait for a pooled runtime
	AcquireTimeout   time.Duration `envconfig:"ACQUIRE_TIMEOUT" default:"5s" yaml:"acquire_timeout" toml:"-"`
	MaxCallStackSize int           `envconfig:"MAX_CALL_STACK" default:"1024" yaml:"max_call_stack" toml:"max_call_stack"`
	UserAgent        string        `envconfig:"USER_AGENT" yaml:"user_agent" toml:"user_agent"`
	// Fail the load on uncaught script exceptions instead of recording them
	FailOnScriptError bool `envconfig:"FAIL_ON_SCRIPT_ERROR" default:"false" yaml:"fail_on_script_error" toml:"fail_on_script_error"`
	EnableConsole     bool `envconfig:"ENABLE_CONSOLE" default:"true" yaml:"enable_console" toml:"enable_console"`
	// Per-context channel capacity; overflow is dropped
	MessageBuffer int `envconfig:"MESSAGE_BUFFER" default:"64" yaml:"message_buffer" toml:"message_buffer"`
	PoolSize      int `envconfig:"POOL_SIZE" default:"4" yaml:"pool_size" toml:"pool_size"`
}

// Result holds the outcome of executing one document
type Result struct {
	Scripts      int           // Inline scripts executed
	Console      []LogEntry    // Console output
	ScriptErrors []ScriptError // Uncaught exceptions
	DOMChanges   []DOMChange   // DOM modifications
	Messages     int           // postMessage calls
	Duration     time.Duration // Execution time
}

// LogEntry represents console output
type LogEntry struct {
	Level   string    // log, warn, error, info
	Message string    // Log message
	Time    time.Time // Timestamp
}

// ScriptError is an uncaught exception from one script or listener
type ScriptError struct {
	Source  string // script-N or event:type
	Message string
}

func (e ScriptError) Error() string {
	return e.Source + ": " + e.Message
}

// DOMChange represents a DOM modification
type DOMChange struct {
	Selector string      // tag#id of the target element
	Property string      // style.x, textContent, innerHTML, attr:x
	Value    interface{} // New value
}

// DefaultConfig returns the default sandbox configuration
func DefaultConfig() Config {
	return Config{
		Timeout:          5 * time.Second,
		AcquireTimeout:   5 * time.Second,
		MaxCallStackSize: 1024,
		UserAgent:        DefaultUserAgent,
		EnableConsole:    true,
		MessageBuffer:    64,
		PoolSize:         4,
	}
}

// withDefaults fills zero values
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = d.AcquireTimeout
	}
	if c.MaxCallStackSize <= 0 {
		c.MaxCallStackSize = d.MaxCallStackSize
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	if c.MessageBuffer <= 0 {
		c.MessageBuffer = d.MessageBuffer
	}
	if c.PoolSize <= 0 {
		c.PoolSize = d.PoolSize
	}
	return c
}
