package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/GriffinCanCode/gamehost/internal/shared/id"
	"github.com/GriffinCanCode/gamehost/internal/shared/utils"
	"github.com/GriffinCanCode/gamehost/internal/storage"
	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

// Export writes every stored bundle, markup included, as a gzip compressed
// JSON array
func (s *Store) Export(ctx context.Context, w io.Writer) (int, error) {
	s.mu.RLock()
	records, err := s.recordsLocked(ctx)
	if err == nil {
		for i := range records {
			html, readErr := os.ReadFile(filepath.Join(s.dir, records[i].FileName))
			if readErr != nil {
				err = fmt.Errorf("read %s: %w", records[i].FileName, readErr)
				break
			}
			records[i].HTML = string(html)
		}
	}
	s.mu.RUnlock()
	if err != nil {
		return 0, err
	}

	data, err := sonic.ConfigStd.MarshalIndent(records, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encode archive: %w", err)
	}
	gz := gzip.NewWriter(w)
	if _, err := gz.Write(data); err != nil {
		return 0, fmt.Errorf("write archive: %w", err)
	}
	if err := gz.Close(); err != nil {
		return 0, fmt.Errorf("close archive: %w", err)
	}
	return len(records), nil
}

// Import merges an archive produced by Export. Bundles whose id is already
// stored are skipped, the merged set is capped newest first, and the number
// of bundles that were not stored before is returned.
func (s *Store) Import(ctx context.Context, r io.Reader) (int, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}
	defer gz.Close()

	data, err := io.ReadAll(io.LimitReader(gz, int64(s.max+1)*utils.MaxMarkupSize))
	if err != nil {
		return 0, fmt.Errorf("read archive: %w", err)
	}
	var incoming []storage.Record
	if err := sonic.Unmarshal(data, &incoming); err != nil {
		return 0, fmt.Errorf("decode archive: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.recordsLocked(ctx)
	if err != nil {
		return 0, err
	}
	known := make(map[string]bool, len(existing))
	for _, rec := range existing {
		known[rec.ID] = true
	}

	fresh := make([]storage.Record, 0, len(incoming))
	for _, rec := range incoming {
		if known[rec.ID] {
			continue
		}
		if utils.ValidateID(rec.ID, "id", true) != nil || utils.ValidateMarkup(rec.HTML) != nil {
			s.logger.Warn("skipping invalid archive entry", zap.String("id", rec.ID))
			continue
		}
		known[rec.ID] = true
		fresh = append(fresh, backfillTimes(rec))
	}

	sort.SliceStable(fresh, func(i, j int) bool {
		return fresh[i].UpdatedAt.After(fresh[j].UpdatedAt)
	})
	for _, rec := range fresh {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if _, err := s.writeLocked(rec); err != nil {
			return 0, err
		}
	}
	if err := s.evictLocked(); err != nil {
		s.logger.Warn("eviction failed", zap.Error(err))
	}

	s.logger.Info("archive imported", zap.Int("new", len(fresh)), zap.Int("received", len(incoming)))
	return len(fresh), nil
}

// backfillTimes dates entries archived without timestamps from their id,
// when the id carries one
func backfillTimes(rec storage.Record) storage.Record {
	if !rec.CreatedAt.IsZero() && !rec.UpdatedAt.IsZero() {
		return rec
	}
	created, err := id.Timestamp(rec.ID)
	if err != nil {
		return rec
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = created
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	return rec
}
