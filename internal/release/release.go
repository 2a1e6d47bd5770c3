// Package release drives releases of holding material through
// pending -> confirmed | cancelled and applies the source transition on
// confirmation.
package release

import (
	"fmt"
	"strings"
	"time"

	"benchcore/pkg/domain"
)

// Request describes a release to record.
type Request struct {
	SourceType      domain.ReleaseSource `json:"source_type"`
	SourceID        string               `json:"source_id"`
	Recipient       domain.Recipient     `json:"recipient"`
	ApplicationType string               `json:"application_type"`
	TubeCount       int                  `json:"tube_count"`
}

// Outcome reports a confirmation and whether the source changed status.
type Outcome struct {
	Release            domain.Release
	SourceTransitioned bool
}

// holding is the view of a source the state machine needs.
type holding struct {
	tubes    int
	status   string
	terminal bool
}

// sourceKind describes how a release source type is looked up and what
// confirmation does to it.
type sourceKind struct {
	entity domain.EntityType
	lookup func(view domain.TransactionView, id string) (holding, bool)
	// confirm applies the source transition and reports whether it changed
	// anything. A nil confirm means the source type has no transition.
	confirm func(tx domain.Transaction, id string) (bool, error)
}

var sourceKinds = map[domain.ReleaseSource]sourceKind{
	domain.SourceCulture: {
		entity: domain.EntityCulture,
		lookup: func(view domain.TransactionView, id string) (holding, bool) {
			c, ok := view.FindCulture(id)
			return holding{
				tubes:    c.TubeCount,
				status:   string(c.Status),
				terminal: c.Status == domain.CultureReleased || c.Status == domain.CultureDisposed,
			}, ok
		},
		confirm: func(tx domain.Transaction, id string) (bool, error) {
			changed := false
			_, err := tx.UpdateCulture(id, func(c *domain.Culture) error {
				switch c.Status {
				case domain.CultureReleased:
					return nil
				case domain.CultureDisposed:
					return domain.IllegalTransitionError{Entity: domain.EntityCulture, ID: id, From: string(c.Status), To: string(domain.CultureReleased)}
				}
				c.Status = domain.CultureReleased
				changed = true
				return nil
			})
			return changed, err
		},
	},
	domain.SourceStorage: {
		entity: domain.EntityStorageUnit,
		lookup: func(view domain.TransactionView, id string) (holding, bool) {
			u, ok := view.FindStorageUnit(id)
			return holding{
				tubes:    u.TubeCount,
				status:   string(u.Status),
				terminal: u.Status == domain.StorageReleased || u.Status == domain.StorageDisposed,
			}, ok
		},
		confirm: func(tx domain.Transaction, id string) (bool, error) {
			changed := false
			_, err := tx.UpdateStorageUnit(id, func(u *domain.StorageUnit) error {
				switch u.Status {
				case domain.StorageReleased:
					return nil
				case domain.StorageDisposed:
					return domain.IllegalTransitionError{Entity: domain.EntityStorageUnit, ID: id, From: string(u.Status), To: string(domain.StorageReleased)}
				}
				u.Status = domain.StorageReleased
				changed = true
				return nil
			})
			return changed, err
		},
	},
	// Master banks are drawn from, never released as a whole.
	domain.SourceMasterBank: {
		entity: domain.EntityMasterBank,
		lookup: func(view domain.TransactionView, id string) (holding, bool) {
			b, ok := view.FindMasterBank(id)
			return holding{
				tubes:    b.TubeCount,
				status:   string(b.Status),
				terminal: b.Status == domain.MasterBankUsed || b.Status == domain.MasterBankDisposed,
			}, ok
		},
	},
}

// Transitions reports whether confirming a release of this source type
// changes the source status.
func Transitions(source domain.ReleaseSource) bool {
	kind, ok := sourceKinds[source]
	return ok && kind.confirm != nil
}

// Create validates req and stores a pending release.
func Create(tx domain.Transaction, req Request) (domain.Release, error) {
	invalid := func(reason string) error {
		return domain.InvariantViolationError{Entity: domain.EntityRelease, Reason: reason}
	}
	kind, ok := sourceKinds[req.SourceType]
	if !ok {
		return domain.Release{}, invalid(fmt.Sprintf("unknown source type %q", req.SourceType))
	}
	source, ok := kind.lookup(tx, req.SourceID)
	if !ok {
		return domain.Release{}, domain.InvalidReferenceError{Entity: kind.entity, ID: req.SourceID}
	}
	switch {
	case source.terminal:
		return domain.Release{}, invalid(fmt.Sprintf("source %s is %s", req.SourceID, source.status))
	case req.TubeCount <= 0:
		return domain.Release{}, invalid("tube count must be positive")
	case req.TubeCount > source.tubes:
		return domain.Release{}, invalid(fmt.Sprintf("tube count %d exceeds the %d held by the source", req.TubeCount, source.tubes))
	case strings.TrimSpace(req.Recipient.Name) == "":
		return domain.Release{}, invalid("recipient name is required")
	}
	return tx.CreateRelease(domain.Release{
		SourceType:      req.SourceType,
		SourceID:        req.SourceID,
		Recipient:       req.Recipient,
		ApplicationType: req.ApplicationType,
		TubeCount:       req.TubeCount,
		Status:          domain.ReleasePending,
	})
}

func pending(tx domain.TransactionView, releaseID string, to domain.ReleaseStatus) (domain.Release, error) {
	current, ok := tx.FindRelease(releaseID)
	if !ok {
		return domain.Release{}, domain.InvalidReferenceError{Entity: domain.EntityRelease, ID: releaseID}
	}
	if current.Status != domain.ReleasePending {
		return domain.Release{}, domain.IllegalTransitionError{
			Entity: domain.EntityRelease,
			ID:     releaseID,
			From:   string(current.Status),
			To:     string(to),
		}
	}
	return current, nil
}

// Confirm moves a pending release to confirmed and applies the source
// transition for its source type.
func Confirm(tx domain.Transaction, releaseID string, now time.Time) (Outcome, error) {
	current, err := pending(tx, releaseID, domain.ReleaseConfirmed)
	if err != nil {
		return Outcome{}, err
	}
	kind, ok := sourceKinds[current.SourceType]
	if !ok {
		return Outcome{}, domain.InvariantViolationError{Entity: domain.EntityRelease, ID: releaseID, Reason: fmt.Sprintf("unknown source type %q", current.SourceType)}
	}
	if _, ok := kind.lookup(tx, current.SourceID); !ok {
		return Outcome{}, domain.InvalidReferenceError{Entity: kind.entity, ID: current.SourceID}
	}

	updated, err := tx.UpdateRelease(releaseID, func(r *domain.Release) error {
		confirmedAt := now
		r.Status = domain.ReleaseConfirmed
		r.ConfirmedAt = &confirmedAt
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Release: updated}
	if kind.confirm != nil {
		if out.SourceTransitioned, err = kind.confirm(tx, current.SourceID); err != nil {
			return Outcome{}, err
		}
	}
	return out, nil
}

// Cancel moves a pending release to cancelled. The source is not touched.
func Cancel(tx domain.Transaction, releaseID, reason string, now time.Time) (domain.Release, error) {
	if _, err := pending(tx, releaseID, domain.ReleaseCancelled); err != nil {
		return domain.Release{}, err
	}
	return tx.UpdateRelease(releaseID, func(r *domain.Release) error {
		cancelledAt := now
		r.Status = domain.ReleaseCancelled
		r.CancelledAt = &cancelledAt
		r.CancelReason = reason
		return nil
	})
}
