package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/GriffinCanCode/gamehost/internal/infrastructure/httpclient"
	"github.com/GriffinCanCode/gamehost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/gamehost/internal/shared/types"
	"github.com/GriffinCanCode/gamehost/internal/shared/utils"
	"github.com/GriffinCanCode/gamehost/internal/storage"
	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const basePath = "/api/game/storage"

// ErrRejected is returned when the service answers success=false
var ErrRejected = errors.New("storage service rejected the request")

// Store is a storage.Store backed by the remote storage service
type Store struct {
	client *httpclient.Client
	logger *logging.Logger
}

// New creates a remote store on top of a collaborator client
func New(client *httpclient.Client, logger *logging.Logger) *Store {
	return &Store{
		client: client,
		logger: logging.OrNop(logger).Named("remote-store"),
	}
}

// Save uploads the bundle and returns the id assigned by the service
func (s *Store) Save(ctx context.Context, b *types.Bundle) (string, error) {
	if err := utils.ValidateMarkup(b.Markup()); err != nil {
		return "", err
	}
	var env envelope
	err := s.call(ctx, "save", &env, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(fromBundle(b, storage.DefaultTitle)).Post(basePath + "/save")
	})
	if err != nil {
		return "", err
	}
	if env.GameID == "" {
		return "", fmt.Errorf("%w: no game id in response", ErrRejected)
	}
	s.logger.Info("bundle saved", zap.String("id", env.GameID))
	return env.GameID, nil
}

// List returns the service's summaries in the order it sends them
func (s *Store) List(ctx context.Context) ([]types.Summary, error) {
	var env listEnvelope
	err := s.call(ctx, "list", &env, func(r *resty.Request) (*resty.Response, error) {
		return r.Get(basePath + "/list")
	})
	if err != nil {
		return nil, err
	}
	out := make([]types.Summary, 0, len(env.Data))
	for _, g := range env.Data {
		out = append(out, g.summary())
	}
	return out, nil
}

// Get downloads a bundle. A 404 maps to storage.ErrNotFound.
func (s *Store) Get(ctx context.Context, gameID string) (*types.Bundle, error) {
	if err := utils.ValidateID(gameID, "id", true); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidID, err)
	}
	var env gameEnvelope
	err := s.call(ctx, "get", &env, func(r *resty.Request) (*resty.Response, error) {
		return r.Get(basePath + "/" + url.PathEscape(gameID))
	})
	if err != nil {
		return nil, err
	}
	if env.Data == nil {
		return nil, storage.ErrNotFound
	}
	return env.Data.bundle(), nil
}

// Delete removes a bundle. A missing id is returned as (false, nil).
func (s *Store) Delete(ctx context.Context, gameID string) (bool, error) {
	if err := utils.ValidateID(gameID, "id", true); err != nil {
		return false, fmt.Errorf("%w: %v", storage.ErrInvalidID, err)
	}
	var env envelope
	err := s.call(ctx, "delete", &env, func(r *resty.Request) (*resty.Response, error) {
		return r.Delete(basePath + "/" + url.PathEscape(gameID))
	})
	if errors.Is(err, ErrRejected) || errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DeleteMany deletes a batch in one request
func (s *Store) DeleteMany(ctx context.Context, ids []string) (types.BatchResult, error) {
	if len(ids) > utils.MaxBatchSize {
		return types.BatchResult{FailCount: len(ids)}, fmt.Errorf("batch of %d exceeds maximum %d", len(ids), utils.MaxBatchSize)
	}
	var env envelope
	err := s.call(ctx, "batch-delete", &env, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(ids).Delete(basePath + "/batch")
	})
	if err != nil {
		return types.BatchResult{FailCount: len(ids)}, err
	}
	return types.BatchResult{SuccessCount: env.SuccessCount, FailCount: env.FailCount}, nil
}

// Stats returns the service's storage statistics
func (s *Store) Stats(ctx context.Context) (types.StorageStats, error) {
	var env statsEnvelope
	err := s.call(ctx, "stats", &env, func(r *resty.Request) (*resty.Response, error) {
		return r.Get(basePath + "/stats")
	})
	if err != nil {
		return types.StorageStats{}, err
	}
	if env.Data == nil {
		return types.StorageStats{}, nil
	}
	return *env.Data, nil
}

// result is implemented by every envelope
type result interface {
	ok() (bool, string)
}

func (e *envelope) ok() (bool, string) {
	if e.Error != "" {
		return e.Success, e.Error
	}
	return e.Success, e.Message
}

// call sends a request and decodes the envelope into out. 404 maps to
// storage.ErrNotFound and success=false to ErrRejected.
func (s *Store) call(ctx context.Context, method string, out result, send func(*resty.Request) (*resty.Response, error)) error {
	resp, err := s.client.Do(ctx, method,
		func(r *resty.Request) *resty.Request { return r.SetHeader("Content-Type", "application/json") },
		send)
	if err != nil {
		if errors.Is(err, httpclient.ErrUnavailable) {
			return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
		}
		return fmt.Errorf("%s: %w", method, err)
	}

	if resp.StatusCode() == http.StatusNotFound {
		return storage.ErrNotFound
	}
	if err := sonic.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%s: decode response (status %d): %w", method, resp.StatusCode(), err)
	}
	if ok, msg := out.ok(); !ok {
		return fmt.Errorf("%w: %s", ErrRejected, msg)
	}
	return nil
}

var _ storage.Store = (*Store)(nil)
