// Package backup uploads compressed copies of the twaps file to
// s3-compatible storage.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/kjk/twaps/log"
	"github.com/kjk/twaps/u"
	"github.com/minio/minio-go/v7"
)

// Storage is implemented by *minioutil.Client
type Storage interface {
	UploadData(ctx context.Context, remotePath string, data []byte) (minio.UploadInfo, error)
	DownloadData(ctx context.Context, remotePath string) ([]byte, error)
	ListObjects(ctx context.Context, prefix string) ([]string, error)
	Remove(ctx context.Context, remotePath string) error
}

var ErrNoBackups = errors.New("no backups found")

type Config struct {
	// remote directory, e.g. "twaps"
	Prefix string
	// "br" or "zstd", "br" if empty
	Compression string
	// how long to wait after a change before uploading, 30s if 0
	Delay time.Duration
	// timeout for upload, including retries, 2 min if 0
	Timeout time.Duration
	// how many times to retry a failed upload, 3 if 0
	Retries int
	// how many most recent backups to keep, all if 0
	Keep int
}

type Backup struct {
	config    Config
	storage   Storage
	debouncer *u.Debouncer

	mu      sync.Mutex
	pending string
	// serializes runs of scheduled backups
	runMu sync.Mutex

	// for tests
	now           func() time.Time
	retryInterval time.Duration
}

func New(config *Config, storage Storage) (*Backup, error) {
	if storage == nil {
		return nil, fmt.Errorf("must provide storage")
	}
	c := Config{}
	if config != nil {
		c = *config
	}
	if c.Compression == "" {
		c.Compression = "br"
	}
	if c.Compression != "br" && c.Compression != "zstd" {
		return nil, fmt.Errorf("unsupported compression '%s', must be 'br' or 'zstd'", c.Compression)
	}
	if c.Delay == 0 {
		c.Delay = 30 * time.Second
	}
	if c.Timeout == 0 {
		c.Timeout = 2 * time.Minute
	}
	if c.Retries == 0 {
		c.Retries = 3
	}
	return &Backup{
		config:    c,
		storage:   storage,
		debouncer: &u.Debouncer{Timeout: c.Delay},
		now:       time.Now,

		retryInterval: backoff.DefaultInitialInterval,
	}, nil
}

func backupBaseName(localPath string) string {
	return strings.TrimSuffix(path.Base(localPath), ".json")
}

// compressionFromKey returns "br" for twaps-2025-03-07_09-05-01.json.br
// and "" if key doesn't look like a backup
func compressionFromKey(key string) string {
	ext := path.Ext(key)
	if !strings.HasSuffix(strings.TrimSuffix(key, ext), ".json") {
		return ""
	}
	switch ext {
	case ".br", ".zstd", ".zst":
		return ext[1:]
	}
	return ""
}

// RemotePath returns where a backup made at t is stored
func (b *Backup) RemotePath(localPath string, t time.Time) string {
	name := fmt.Sprintf("%s-%s.json.%s", backupBaseName(localPath), t.UTC().Format("2006-01-02_15-04-05"), b.config.Compression)
	return path.Join(b.config.Prefix, name)
}

// List returns remote paths of backups of localPath, oldest first
func (b *Backup) List(ctx context.Context, localPath string) ([]string, error) {
	prefix := path.Join(b.config.Prefix, backupBaseName(localPath)+"-")
	keys, err := b.storage.ListObjects(ctx, prefix)
	if err != nil {
		return nil, err
	}
	var res []string
	for _, key := range keys {
		if compressionFromKey(key) != "" {
			res = append(res, key)
		}
	}
	// names have sortable timestamps
	sort.Strings(res)
	return res, nil
}

// Prune removes all but the config.Keep most recent backups
func (b *Backup) Prune(ctx context.Context, localPath string) error {
	if b.config.Keep <= 0 {
		return nil
	}
	keys, err := b.List(ctx, localPath)
	if err != nil {
		return err
	}
	if len(keys) <= b.config.Keep {
		return nil
	}
	toRemove := keys[:len(keys)-b.config.Keep]
	var errs []error
	for _, key := range toRemove {
		if err := b.storage.Remove(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("removing '%s': %w", key, err))
		}
	}
	log.Verbosef("backup: removed %d old backups\n", len(toRemove)-len(errs))
	return errors.Join(errs...)
}

// Latest downloads the most recent backup of localPath
// and returns its remote path and decompressed content
func (b *Backup) Latest(ctx context.Context, localPath string) (string, []byte, error) {
	keys, err := b.List(ctx, localPath)
	if err != nil {
		return "", nil, err
	}
	if len(keys) == 0 {
		return "", nil, ErrNoBackups
	}
	remotePath := keys[len(keys)-1]
	d, err := b.storage.DownloadData(ctx, remotePath)
	if err != nil {
		return "", nil, fmt.Errorf("downloading '%s': %w", remotePath, err)
	}
	d, err = u.DecompressData(d, compressionFromKey(remotePath))
	if err != nil {
		return "", nil, fmt.Errorf("decompressing '%s': %w", remotePath, err)
	}
	return remotePath, d, nil
}

// Run compresses and uploads localPath, returns the remote path
func (b *Backup) Run(ctx context.Context, localPath string) (string, error) {
	d, err := os.ReadFile(localPath)
	if err != nil {
		return "", err
	}
	compressed, err := u.CompressData(d, b.config.Compression)
	if err != nil {
		return "", err
	}
	remotePath := b.RemotePath(localPath, b.now())
	ctx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()
	timeStart := time.Now()
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(backoff.WithInitialInterval(b.retryInterval)), uint64(b.config.Retries))
	upload := func() error {
		_, err := b.storage.UploadData(ctx, remotePath, compressed)
		return err
	}
	err = backoff.RetryNotify(upload, backoff.WithContext(policy, ctx), func(err error, next time.Duration) {
		log.Warnf("backup: uploading '%s' failed, retrying in %s: %s\n", remotePath, next, err)
	})
	if err != nil {
		return "", fmt.Errorf("uploading '%s' as '%s': %w", localPath, remotePath, err)
	}
	log.Logf("backup: uploaded '%s' as '%s' (%d => %d bytes) in %s\n", localPath, remotePath, len(d), len(compressed), time.Since(timeStart))
	log.Event("twaps-backup", "remote", remotePath, "size", len(compressed))
	err = b.Prune(ctx, localPath)
	log.IfErrf(err, "backup: pruning old backups failed with '%s'", err)
	return remotePath, nil
}

func (b *Backup) runPending(ctx context.Context) error {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	b.mu.Lock()
	localPath := b.pending
	b.pending = ""
	b.mu.Unlock()
	if localPath == "" {
		return nil
	}
	_, err := b.Run(ctx, localPath)
	return err
}

// Schedule runs a backup of localPath after a delay, coalescing
// calls made while waiting. Errors are logged.
// Matches twapstore.Options.DidChange signature.
func (b *Backup) Schedule(localPath string) {
	b.mu.Lock()
	b.pending = localPath
	b.mu.Unlock()
	b.debouncer.Debounce(func() {
		err := b.runPending(context.Background())
		log.IfErrf(err, "backup: %s", err)
	})
}

// Flush runs a scheduled backup now instead of after the delay.
// If a scheduled backup is already uploading, waits for it to finish.
func (b *Backup) Flush(ctx context.Context) error {
	b.debouncer.Stop()
	return b.runPending(ctx)
}
