package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/harshtodi-pixel/get-stocks-data/internal/domain"
)

// Compile-time interface checks.
var _ Locker = (*FileLocker)(nil)
var _ Locker = (*RedisLocker)(nil)

// ---------------------------------------------------------------------------
// File lock
// ---------------------------------------------------------------------------

// FileLocker locks a dataset by exclusively creating <dataset>.lock next to
// its Parquet file. Lock files older than TTL are treated as abandoned.
type FileLocker struct {
	DataDir string
	TTL     time.Duration
}

// NewFileLocker creates a FileLocker rooted at dataDir.
func NewFileLocker(dataDir string, ttl time.Duration) *FileLocker {
	return &FileLocker{DataDir: dataDir, TTL: ttl}
}

// Acquire creates the lock file or fails with domain.ErrLocked.
func (l *FileLocker) Acquire(_ context.Context, ds domain.Dataset) (func() error, error) {
	path := filepath.Join(l.DataDir, ds.RelPath()+".lock")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, os.ErrExist) && l.stale(path) {
		os.Remove(path)
		f, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	}
	if errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("%s: %w", ds, domain.ErrLocked)
	}
	if err != nil {
		return nil, fmt.Errorf("creating lock %s: %w", path, err)
	}

	fmt.Fprintf(f, "pid=%d since=%s\n", os.Getpid(), time.Now().Format(time.RFC3339))
	f.Close()

	return func() error {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}, nil
}

func (l *FileLocker) stale(path string) bool {
	if l.TTL <= 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && time.Since(info.ModTime()) > l.TTL
}

// ---------------------------------------------------------------------------
// Redis lock
// ---------------------------------------------------------------------------

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker locks datasets across hosts with SET NX and a TTL.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisLocker creates a RedisLocker. Keys are "<prefix><dataset>".
func NewRedisLocker(client *redis.Client, prefix string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl}
}

// Acquire sets the dataset key if absent or fails with domain.ErrLocked.
func (l *RedisLocker) Acquire(ctx context.Context, ds domain.Dataset) (func() error, error) {
	key := l.prefix + ds.String()

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	token := hex.EncodeToString(buf)

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", ds, domain.ErrLocked)
	}

	return func() error {
		// The run context may already be cancelled; release regardless.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}, nil
}
