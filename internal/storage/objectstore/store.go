package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/gamehost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/gamehost/internal/shared/id"
	"github.com/GriffinCanCode/gamehost/internal/shared/types"
	"github.com/GriffinCanCode/gamehost/internal/shared/utils"
	"github.com/GriffinCanCode/gamehost/internal/storage"
	"github.com/bytedance/sonic"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

const (
	markupObject = "index.html"
	metaObject   = "meta.json"
)

// Config locates the bucket
type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// Store keeps each bundle as <prefix>/<id>/index.html plus meta.json
type Store struct {
	client *minio.Client
	bucket string
	region string
	prefix string
	logger *logging.Logger
	now    func() time.Time

	initOnce sync.Once
	initErr  error
}

// New connects to the bucket. The bucket is created on first use.
func New(cfg Config, logger *logging.Logger) (*Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("object store endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("object store access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("object store bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init object store client: %w", err)
	}

	return &Store{
		client: client,
		bucket: bucket,
		region: region,
		prefix: normalizePrefix(cfg.Prefix),
		logger: logging.OrNop(logger).Named("object-store"),
		now:    time.Now,
	}, nil
}

func (s *Store) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
	})
	if s.initErr != nil {
		return fmt.Errorf("ensure bucket: %w", s.initErr)
	}
	return nil
}

// Save uploads markup and metadata. Unlike the local store there is no cap.
func (s *Store) Save(ctx context.Context, b *types.Bundle) (string, error) {
	if err := utils.ValidateMarkup(b.Markup()); err != nil {
		return "", err
	}
	gameID := b.ID()
	if gameID == "" {
		gameID = id.NewGameID().String()
	} else if err := utils.ValidateID(gameID, "id", true); err != nil {
		return "", fmt.Errorf("%w: %v", storage.ErrInvalidID, err)
	}
	if err := s.ensureBucket(ctx); err != nil {
		return "", err
	}

	rec := storage.NewRecord(gameID, b, s.now())
	rec.FileName = objectKey(s.prefix, gameID, markupObject)
	markup := []byte(rec.HTML)
	rec.HTML = ""

	meta, err := sonic.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}

	_, err = s.client.PutObject(ctx, s.bucket, rec.FileName, bytes.NewReader(markup), int64(len(markup)), minio.PutObjectOptions{
		ContentType: "text/html; charset=utf-8",
	})
	if err != nil {
		return "", fmt.Errorf("put markup: %w", err)
	}
	_, err = s.client.PutObject(ctx, s.bucket, objectKey(s.prefix, gameID, metaObject), bytes.NewReader(meta), int64(len(meta)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("put metadata: %w", err)
	}

	s.logger.Info("bundle saved", zap.String("id", gameID), zap.String("key", rec.FileName))
	return gameID, nil
}

// List reads every metadata object, most recently updated first
func (s *Store) List(ctx context.Context) ([]types.Summary, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}

	var out []types.Summary
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if path.Base(obj.Key) != metaObject {
			continue
		}
		rec, err := s.readRecord(ctx, obj.Key)
		if err != nil {
			s.logger.Warn("skipping metadata", zap.String("key", obj.Key), zap.Error(err))
			continue
		}
		out = append(out, rec.Summary)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// Get downloads a bundle
func (s *Store) Get(ctx context.Context, gameID string) (*types.Bundle, error) {
	if err := utils.ValidateID(gameID, "id", true); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidID, err)
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}

	rec, err := s.readRecord(ctx, objectKey(s.prefix, gameID, metaObject))
	if err != nil {
		return nil, err
	}
	markup, err := s.read(ctx, objectKey(s.prefix, gameID, markupObject))
	if err != nil {
		return nil, err
	}
	return rec.Bundle(string(markup)), nil
}

// Delete removes both objects of a bundle
func (s *Store) Delete(ctx context.Context, gameID string) (bool, error) {
	if err := utils.ValidateID(gameID, "id", true); err != nil {
		return false, fmt.Errorf("%w: %v", storage.ErrInvalidID, err)
	}
	if err := s.ensureBucket(ctx); err != nil {
		return false, err
	}

	metaKey := objectKey(s.prefix, gameID, metaObject)
	if _, err := s.client.StatObject(ctx, s.bucket, metaKey, minio.StatObjectOptions{}); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", metaKey, err)
	}

	for _, key := range []string{objectKey(s.prefix, gameID, markupObject), metaKey} {
		if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
			return false, fmt.Errorf("remove %s: %w", key, err)
		}
	}
	s.logger.Info("bundle deleted", zap.String("id", gameID))
	return true, nil
}

// DeleteMany deletes each id in turn
func (s *Store) DeleteMany(ctx context.Context, ids []string) (types.BatchResult, error) {
	var result types.BatchResult
	if len(ids) > utils.MaxBatchSize {
		return result, fmt.Errorf("batch of %d exceeds maximum %d", len(ids), utils.MaxBatchSize)
	}
	for _, gameID := range ids {
		ok, err := s.Delete(ctx, gameID)
		if err != nil && ctx.Err() != nil {
			return result, ctx.Err()
		}
		if ok {
			result.SuccessCount++
		} else {
			result.FailCount++
		}
	}
	return result, nil
}

// Stats totals the markup objects under the prefix
func (s *Store) Stats(ctx context.Context) (types.StorageStats, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return types.StorageStats{}, err
	}

	stats := types.StorageStats{Location: "s3://" + s.bucket + "/" + s.prefix}
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return types.StorageStats{}, obj.Err
		}
		if path.Base(obj.Key) == markupObject {
			stats.Count++
			stats.TotalSize += obj.Size
		}
	}
	return stats, nil
}

func (s *Store) read(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) readRecord(ctx context.Context, key string) (storage.Record, error) {
	var rec storage.Record
	data, err := s.read(ctx, key)
	if err != nil {
		return rec, err
	}
	if err := sonic.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("decode %s: %w", key, err)
	}
	return rec, nil
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket" || code == "NotFound"
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = "games"
	}
	return prefix + "/"
}

func objectKey(prefix, gameID, name string) string {
	return prefix + gameID + "/" + name
}

var _ storage.Store = (*Store)(nil)
