// Package blob opens the configured blob backend and archives committed
// snapshots into it as JSON documents.
package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"benchcore/internal/blob/core"
	"benchcore/internal/config"
	"benchcore/internal/infra/blob/memory"
	"benchcore/internal/infra/blob/s3"
	persistmem "benchcore/internal/infra/persistence/memory"

	"github.com/google/uuid"
)

// Open selects a blob store for cfg.
func Open(ctx context.Context, cfg config.Blob) (core.Store, error) {
	switch core.Driver(cfg.Driver) {
	case core.DriverMemory, "":
		return memory.New(), nil
	case core.DriverS3:
		return s3.New(ctx, s3.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			PathStyle:       cfg.S3.PathStyle,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}

// ErrNoSnapshots is returned by Latest when the archive is empty.
var ErrNoSnapshots = errors.New("no archived snapshots")

// Archive writes snapshots under a key prefix. Keys sort chronologically.
type Archive struct {
	store  core.Store
	prefix string
	now    func() time.Time
}

// NewArchive wraps store. An empty prefix archives at the bucket root.
func NewArchive(store core.Store, prefix string) *Archive {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Archive{store: store, prefix: prefix, now: func() time.Time { return time.Now().UTC() }}
}

// Save stores snapshot and returns its key.
func (a *Archive) Save(ctx context.Context, snapshot persistmem.Snapshot) (string, error) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	key := fmt.Sprintf("%s%s-%s.json", a.prefix, a.now().Format("20060102T150405.000000000Z"), uuid.NewString()[:8])
	if _, err := a.store.Put(ctx, key, bytes.NewReader(payload), core.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"format": "benchcore-snapshot"},
	}); err != nil {
		return "", err
	}
	return key, nil
}

// Load reads the snapshot stored at key.
func (a *Archive) Load(ctx context.Context, key string) (persistmem.Snapshot, error) {
	_, rc, err := a.store.Get(ctx, key)
	if err != nil {
		return persistmem.Snapshot{}, err
	}
	defer func() { _ = rc.Close() }()
	var snapshot persistmem.Snapshot
	if err := json.NewDecoder(rc).Decode(&snapshot); err != nil {
		return persistmem.Snapshot{}, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return snapshot, nil
}

// Keys lists archived snapshot keys, oldest first.
func (a *Archive) Keys(ctx context.Context) ([]string, error) {
	infos, err := a.store.List(ctx, a.prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(infos))
	for _, info := range infos {
		if strings.HasSuffix(info.Key, ".json") {
			keys = append(keys, info.Key)
		}
	}
	return keys, nil
}

// Latest returns the key of the newest archived snapshot.
func (a *Archive) Latest(ctx context.Context) (string, error) {
	keys, err := a.Keys(ctx)
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "", ErrNoSnapshots
	}
	return keys[len(keys)-1], nil
}

// Prune deletes all but the newest keep snapshots and returns the removed keys.
func (a *Archive) Prune(ctx context.Context, keep int) ([]string, error) {
	keys, err := a.Keys(ctx)
	if err != nil {
		return nil, err
	}
	if keep < 0 {
		keep = 0
	}
	if len(keys) <= keep {
		return nil, nil
	}
	stale := keys[:len(keys)-keep]
	for _, key := range stale {
		if _, err := a.store.Delete(ctx, key); err != nil {
			return nil, err
		}
	}
	return stale, nil
}
