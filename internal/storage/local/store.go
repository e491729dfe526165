package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/gamehost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/gamehost/internal/shared/id"
	"github.com/GriffinCanCode/gamehost/internal/shared/types"
	"github.com/GriffinCanCode/gamehost/internal/shared/utils"
	"github.com/GriffinCanCode/gamehost/internal/storage"
	"github.com/adrg/xdg"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/bytedance/sonic"
	"github.com/charlievieth/fastwalk"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

const (
	htmlExt = ".html"
	metaExt = ".json"
)

// DefaultDir returns $XDG_DATA_HOME/gamehost/saved-games
func DefaultDir() string {
	return filepath.Join(xdg.DataHome, "gamehost", "saved-games")
}

// Store keeps bundles in a directory, newest first, at most Max of them
type Store struct {
	dir    string
	max    int
	logger *logging.Logger
	now    func() time.Time

	mu sync.RWMutex
}

// Option configures a Store
type Option func(*Store)

// WithMax overrides the bundle cap
func WithMax(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.max = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New opens a store rooted at dir, creating it if needed. An empty dir
// selects DefaultDir.
func New(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		dir = DefaultDir()
	}
	s := &Store{
		dir: dir,
		max: storage.MaxSaved,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger).Named("local-store")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return s, nil
}

// Dir returns the storage directory
func (s *Store) Dir() string { return s.dir }

// Save writes the bundle and evicts the oldest ones beyond the cap. A bundle
// that already carries an id replaces the stored copy.
func (s *Store) Save(ctx context.Context, b *types.Bundle) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := utils.ValidateMarkup(b.Markup()); err != nil {
		return "", err
	}
	if mt := mimetype.Detect([]byte(b.Markup())); !strings.HasPrefix(mt.String(), "text/") {
		return "", fmt.Errorf("%w: detected %s", storage.ErrNotMarkup, mt.String())
	}

	gameID := b.ID()
	if gameID == "" {
		gameID = id.NewGameID().String()
	} else if err := utils.ValidateID(gameID, "id", true); err != nil {
		return "", fmt.Errorf("%w: %v", storage.ErrInvalidID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := storage.NewRecord(gameID, b, s.now())
	if err := s.removeLocked(gameID); err != nil {
		return "", err
	}
	rec, err := s.writeLocked(rec)
	if err != nil {
		return "", err
	}
	s.logger.Info("bundle saved", zap.String("id", gameID), zap.String("file", rec.FileName))

	if err := s.evictLocked(); err != nil {
		s.logger.Warn("eviction failed", zap.Error(err))
	}
	return gameID, nil
}

// List returns summaries, most recently updated first
func (s *Store) List(ctx context.Context) ([]types.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := s.recordsLocked(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.Summary, len(records))
	for i, rec := range records {
		out[i] = rec.Summary
	}
	return out, nil
}

// Get loads a bundle by id
func (s *Store) Get(ctx context.Context, gameID string) (*types.Bundle, error) {
	if err := validateID(gameID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.findLocked(gameID)
	if err != nil {
		return nil, err
	}
	html, err := os.ReadFile(filepath.Join(s.dir, rec.FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	return rec.Bundle(string(html)), nil
}

// Delete removes every file belonging to the id
func (s *Store) Delete(ctx context.Context, gameID string) (bool, error) {
	if err := validateID(gameID); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.filesLocked(gameID)
	if err != nil {
		return false, err
	}
	if err := s.removeLocked(gameID); err != nil {
		return false, err
	}
	if len(files) > 0 {
		s.logger.Info("bundle deleted", zap.String("id", gameID))
	}
	return len(files) > 0, nil
}

// DeleteMany deletes each id, counting misses and errors as failures
func (s *Store) DeleteMany(ctx context.Context, ids []string) (types.BatchResult, error) {
	var result types.BatchResult
	if len(ids) > utils.MaxBatchSize {
		return result, fmt.Errorf("batch of %d exceeds maximum %d", len(ids), utils.MaxBatchSize)
	}
	for _, gameID := range ids {
		ok, err := s.Delete(ctx, gameID)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			s.logger.Warn("batch delete failed", zap.String("id", gameID), zap.Error(err))
		}
		if ok {
			result.SuccessCount++
		} else {
			result.FailCount++
		}
	}
	return result, nil
}

// Stats walks the directory and totals the stored markup
func (s *Store) Stats(ctx context.Context) (types.StorageStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count, size atomic.Int64
	root := filepath.Clean(s.dir)
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(path string, d os.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if filepath.Clean(path) != root {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != htmlExt {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		count.Add(1)
		size.Add(info.Size())
		return nil
	})
	if err != nil {
		return types.StorageStats{}, fmt.Errorf("walk storage dir: %w", err)
	}

	return types.StorageStats{
		Count:     int(count.Load()),
		TotalSize: size.Load(),
		Location:  s.dir,
	}, nil
}

func validateID(gameID string) error {
	if err := utils.ValidateID(gameID, "id", true); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidID, err)
	}
	return nil
}

func baseName(rec storage.Record) string {
	return rec.ID + "_" + utils.SafeFileName(rec.Title)
}

// writeLocked stores the markup and sidecar and returns the record as
// persisted
func (s *Store) writeLocked(rec storage.Record) (storage.Record, error) {
	base := baseName(rec)
	rec.FileName = base + htmlExt

	htmlPath := filepath.Join(s.dir, rec.FileName)
	if err := os.WriteFile(htmlPath, []byte(rec.HTML), 0o644); err != nil {
		return rec, fmt.Errorf("write bundle: %w", err)
	}
	if info, err := os.Stat(htmlPath); err == nil {
		rec.FileSize = info.Size()
	}

	rec.HTML = ""
	meta, err := sonic.ConfigStd.MarshalIndent(rec, "", "  ")
	if err != nil {
		return rec, fmt.Errorf("encode sidecar: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, base+metaExt), meta, 0o644); err != nil {
		return rec, fmt.Errorf("write sidecar: %w", err)
	}
	return rec, nil
}

// filesLocked lists every file belonging to the id. Ids may contain
// underscores, so a glob on "<id>_" alone can match another bundle; the
// sidecar's id decides.
func (s *Store) filesLocked(gameID string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(s.dir), gameID+"_*"+metaExt)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", gameID, err)
	}
	var files []string
	for _, name := range matches {
		rec, err := s.readRecord(name)
		if err != nil || rec.ID != gameID {
			continue
		}
		files = append(files, name)
		if rec.FileName != "" {
			files = append(files, rec.FileName)
		}
	}
	return files, nil
}

func (s *Store) removeLocked(gameID string) error {
	files, err := s.filesLocked(gameID)
	if err != nil {
		return err
	}
	for _, name := range files {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) findLocked(gameID string) (storage.Record, error) {
	matches, err := doublestar.Glob(os.DirFS(s.dir), gameID+"_*"+metaExt)
	if err != nil {
		return storage.Record{}, fmt.Errorf("glob %s: %w", gameID, err)
	}
	for _, name := range matches {
		rec, err := s.readRecord(name)
		if err == nil && rec.ID == gameID {
			return rec, nil
		}
	}
	return storage.Record{}, storage.ErrNotFound
}

func (s *Store) readRecord(name string) (storage.Record, error) {
	var rec storage.Record
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return rec, fmt.Errorf("read sidecar: %w", err)
	}
	if err := sonic.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("decode sidecar %s: %w", name, err)
	}
	return rec, nil
}

// recordsLocked reads every sidecar, newest first. Unreadable sidecars are
// logged and skipped.
func (s *Store) recordsLocked(ctx context.Context) ([]storage.Record, error) {
	matches, err := doublestar.Glob(os.DirFS(s.dir), "*"+metaExt)
	if err != nil {
		return nil, fmt.Errorf("glob sidecars: %w", err)
	}

	records := make([]storage.Record, 0, len(matches))
	for _, name := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := s.readRecord(name)
		if err != nil {
			s.logger.Warn("skipping sidecar", zap.String("file", name), zap.Error(err))
			continue
		}
		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})
	return records, nil
}

func (s *Store) evictLocked() error {
	records, err := s.recordsLocked(context.Background())
	if err != nil {
		return err
	}
	if len(records) <= s.max {
		return nil
	}
	for _, rec := range records[s.max:] {
		if err := s.removeLocked(rec.ID); err != nil {
			return err
		}
		s.logger.Debug("bundle evicted", zap.String("id", rec.ID))
	}
	return nil
}
