package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrObjectNotFound = errors.New("blob object not found")

// Store archives raw webhook payloads.
type Store interface {
	Put(ctx context.Context, key, contentType string, body []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

type Config struct {
	Backend           string
	FSRoot            string
	S3Bucket          string
	S3Prefix          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3ForcePathStyle  bool
}

// NewFromConfig returns a nil Store for the "none" backend; callers skip
// archiving in that case.
func NewFromConfig(ctx context.Context, cfg Config) (Store, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = "none"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "filesystem", "fs", "local":
		return NewFilesystemStore(cfg.FSRoot)
	case "s3", "r2":
		return NewS3Store(ctx, S3Config{
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			ForcePathStyle:  cfg.S3ForcePathStyle,
		})
	default:
		return nil, fmt.Errorf("unsupported blob backend: %s", backend)
	}
}

// RawPayloadKey is the archive key of a webhook body received at t.
func RawPayloadKey(t time.Time, id uuid.UUID) string {
	t = t.UTC()
	return fmt.Sprintf("raw/%04d/%02d/%02d/%s.json", t.Year(), int(t.Month()), t.Day(), id)
}

// BatchDeleter is implemented by stores that can remove many keys per call.
type BatchDeleter interface {
	DeleteKeys(ctx context.Context, keys []string) error
}

// DeleteAll removes every key from s, batching when s supports it. Missing
// keys are not an error.
func DeleteAll(ctx context.Context, s Store, keys []string) error {
	if s == nil || len(keys) == 0 {
		return nil
	}
	if bd, ok := s.(BatchDeleter); ok {
		return bd.DeleteKeys(ctx, keys)
	}
	var errs []error
	for _, k := range keys {
		if err := s.Delete(ctx, k); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}
