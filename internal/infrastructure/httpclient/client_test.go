package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/gamehost/internal/infrastructure/resilience"
	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	calls  int
	errors []string
}

func (r *recorder) RecordServiceCall(service, method, status string, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
}

func (r *recorder) RecordServiceError(service, method, errorType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, errorType)
}

func get(path string) (func(*resty.Request) *resty.Request, func(*resty.Request) (*resty.Response, error)) {
	return func(r *resty.Request) *resty.Request { return r },
		func(r *resty.Request) (*resty.Response, error) { return r.Get(path) }
}

func TestDoSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gamehost/1.0", r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	rec := &recorder{}
	c := New("test", Config{BaseURL: srv.URL}, WithRecorder(rec))

	build, send := get("/ping")
	resp, err := c.Do(context.Background(), "ping", build, send)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, 1, rec.calls)
	assert.Empty(t, rec.errors)
}

func TestDoClientErrorDoesNotTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New("test", Config{BaseURL: srv.URL}, WithBreaker(resilience.New("test", resilience.Settings{
		ReadyToTrip: func(c resilience.Counts) bool { return c.ConsecutiveFailures >= 1 },
	})))

	build, send := get("/missing")
	for i := 0; i < 3; i++ {
		resp, err := c.Do(context.Background(), "get", build, send)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode())
	}
	assert.Equal(t, resilience.StateClosed, c.BreakerState())
}

func TestDoServerErrorsOpenBreaker(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	rec := &recorder{}
	c := New("test", Config{BaseURL: srv.URL}, WithRecorder(rec), WithBreaker(resilience.New("test", resilience.Settings{
		Timeout:     time.Minute,
		ReadyToTrip: func(c resilience.Counts) bool { return c.ConsecutiveFailures >= 2 },
	})))

	build, send := get("/boom")
	for i := 0; i < 2; i++ {
		_, err := c.Do(context.Background(), "get", build, send)
		assert.Error(t, err)
	}
	assert.Equal(t, resilience.StateOpen, c.BreakerState())

	_, err := c.Do(context.Background(), "get", build, send)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 2, hits)
	assert.Equal(t, []string{"server", "server", "breaker"}, rec.errors)
}

func TestDoHonorsCanceledContext(t *testing.T) {
	c := New("test", Config{BaseURL: "http://127.0.0.1:1", RateLimit: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	build, send := get("/")
	_, err := c.Do(ctx, "get", build, send)
	assert.Error(t, err)
}
