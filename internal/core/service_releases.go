package core

import (
	"context"

	"benchcore/internal/release"
	"benchcore/pkg/domain"
)

// CreateRelease records a pending release of holding material.
func (s *Service) CreateRelease(ctx context.Context, req release.Request) (domain.Release, Result, error) {
	var created domain.Release
	res, err := s.run(ctx, OpCreateRelease, func(tx Transaction, fx *effects) error {
		var err error
		created, err = release.Create(tx, req)
		fx.entityID = created.ID
		return err
	})
	return created, res, err
}

// ConfirmRelease confirms a pending release and transitions its source.
func (s *Service) ConfirmRelease(ctx context.Context, id string) (release.Outcome, Result, error) {
	var outcome release.Outcome
	res, err := s.run(ctx, OpConfirmRelease, func(tx Transaction, fx *effects) error {
		fx.entityID = id
		now := s.now()
		var err error
		if outcome, err = release.Confirm(tx, id, now); err != nil {
			return err
		}
		fx.emit(EventReleaseConfirmed, domain.EntityRelease, id, now, outcome.Release)
		return nil
	})
	return outcome, res, err
}

// CancelRelease cancels a pending release without touching its source.
func (s *Service) CancelRelease(ctx context.Context, id, reason string) (domain.Release, Result, error) {
	var cancelled domain.Release
	res, err := s.run(ctx, OpCancelRelease, func(tx Transaction, fx *effects) error {
		fx.entityID = id
		now := s.now()
		var err error
		if cancelled, err = release.Cancel(tx, id, reason, now); err != nil {
			return err
		}
		fx.emit(EventReleaseCancelled, domain.EntityRelease, id, now, cancelled)
		return nil
	})
	return cancelled, res, err
}
