package core

import (
	"context"
	"fmt"

	"benchcore/internal/infra/persistence/memory"
	"benchcore/pkg/domain"
)

// SnapshotArchive stores committed snapshots outside the primary store.
type SnapshotArchive interface {
	Save(ctx context.Context, snapshot memory.Snapshot) (string, error)
	Load(ctx context.Context, key string) (memory.Snapshot, error)
}

type snapshotStore interface {
	ExportState() memory.Snapshot
}

// stateReplacer is implemented by memory-backed transactions.
type stateReplacer interface {
	ReplaceState(memory.Snapshot)
}

func (s *Service) snapshotStore() (snapshotStore, error) {
	store, ok := s.store.(snapshotStore)
	if !ok {
		return nil, fmt.Errorf("store %T does not support snapshots", s.store)
	}
	return store, nil
}

// Backup archives the committed state and returns the archive key.
func (s *Service) Backup(ctx context.Context, archive SnapshotArchive) (string, error) {
	store, err := s.snapshotStore()
	if err != nil {
		return "", err
	}
	key, err := archive.Save(ctx, store.ExportState())
	if err != nil {
		s.logger.Error("snapshot backup failed", "error", err)
		return "", fmt.Errorf("archive snapshot: %w", err)
	}
	s.logger.Info("snapshot archived", "key", key)
	return key, nil
}

// Restore replaces the committed state with the archived snapshot at key. The
// snapshot is imported inside a transaction, so the commit-time rules check
// every record and a snapshot that breaks them is rejected without touching
// the committed state. Durable stores write the result through on commit.
func (s *Service) Restore(ctx context.Context, archive SnapshotArchive, key string) error {
	if !s.authorizer.CanEdit(ctx) {
		return domain.ErrEditNotAllowed
	}
	if _, err := s.snapshotStore(); err != nil {
		return err
	}
	snapshot, err := archive.Load(ctx, key)
	if err != nil {
		return fmt.Errorf("load snapshot %s: %w", key, err)
	}
	_, err = s.run(ctx, OpRestore, func(tx Transaction, fx *effects) error {
		replacer, ok := tx.(stateReplacer)
		if !ok {
			return fmt.Errorf("transaction %T cannot replace state", tx)
		}
		replacer.ReplaceState(snapshot)
		fx.entityID = key
		return nil
	})
	return err
}
