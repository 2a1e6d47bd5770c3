package core

import (
	"context"
	"errors"
	"testing"

	"benchcore/internal/release"
	"benchcore/pkg/domain"
)

func TestHoldingsRequireDonor(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.CreateDonor(ctx, domain.Donor{}); !errors.Is(err, domain.ErrInvariantViolation) {
		t.Fatalf("expected donor code to be required, got %v", err)
	}
	if _, _, err := svc.CreateCulture(ctx, domain.Culture{Holding: domain.Holding{DonorID: "missing", TubeCount: 1}}); !errors.Is(err, domain.ErrInvalidReference) {
		t.Fatalf("expected unknown donor to be rejected, got %v", err)
	}
}

func TestHoldingStatusTransitions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	donor := mustDonor(t, svc)

	culture, _, err := svc.CreateCulture(ctx, domain.Culture{Holding: domain.Holding{DonorID: donor.ID, CellType: "MSC", TubeCount: 4}, Status: domain.CultureReleased})
	if err != nil {
		t.Fatalf("create culture: %v", err)
	}
	if culture.Status != domain.CultureInWork {
		t.Fatalf("expected culture in work, got %s", culture.Status)
	}
	if _, _, err := svc.SetCultureStatus(ctx, culture.ID, domain.CultureReleased); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Fatalf("expected manual release to be rejected, got %v", err)
	}
	if _, _, err := svc.SetCultureStatus(ctx, culture.ID, domain.CultureFrozen); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if _, _, err := svc.SetCultureStatus(ctx, culture.ID, domain.CultureDisposed); err != nil {
		t.Fatalf("dispose: %v", err)
	}
	if _, _, err := svc.SetCultureStatus(ctx, culture.ID, domain.CultureInWork); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Fatalf("expected disposal to be terminal, got %v", err)
	}

	unit, _, err := svc.CreateStorageUnit(ctx, domain.StorageUnit{Holding: domain.Holding{DonorID: donor.ID, TubeCount: 10}, Location: "Dewar A"})
	if err != nil {
		t.Fatalf("create storage: %v", err)
	}
	if _, _, err := svc.SetStorageStatus(ctx, unit.ID, domain.StoragePartiallyRetrieved); err != nil {
		t.Fatalf("partial retrieval: %v", err)
	}
	if _, _, err := svc.SetStorageStatus(ctx, unit.ID, "thawed"); !errors.Is(err, domain.ErrInvariantViolation) {
		t.Fatalf("expected unknown status to be rejected, got %v", err)
	}

	bank, _, err := svc.CreateMasterBank(ctx, domain.MasterBank{Holding: domain.Holding{DonorID: donor.ID, TubeCount: 20}})
	if err != nil {
		t.Fatalf("create bank: %v", err)
	}
	if bank.Status != domain.MasterBankStored {
		t.Fatalf("expected stored bank, got %s", bank.Status)
	}
	if _, _, err := svc.SetMasterBankStatus(ctx, bank.ID, domain.MasterBankUsed); err != nil {
		t.Fatalf("use bank: %v", err)
	}
}

func TestReleaseConfirmTransitionsSourceOnce(t *testing.T) {
	pub := &capturePublisher{}
	svc := newTestService(t, WithEventPublisher(pub))
	ctx := context.Background()
	donor := mustDonor(t, svc)
	culture, _, err := svc.CreateCulture(ctx, domain.Culture{Holding: domain.Holding{DonorID: donor.ID, TubeCount: 5}})
	if err != nil {
		t.Fatalf("create culture: %v", err)
	}

	rel, _, err := svc.CreateRelease(ctx, release.Request{
		SourceType:      domain.SourceCulture,
		SourceID:        culture.ID,
		Recipient:       domain.Recipient{Name: "Clinic North"},
		ApplicationType: "research",
		TubeCount:       3,
	})
	if err != nil {
		t.Fatalf("create release: %v", err)
	}
	if rel.Status != domain.ReleasePending {
		t.Fatalf("expected pending release, got %s", rel.Status)
	}

	outcome, _, err := svc.ConfirmRelease(ctx, rel.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !outcome.SourceTransitioned || outcome.Release.ConfirmedAt == nil || !outcome.Release.ConfirmedAt.Equal(testNow) {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	_ = svc.View(ctx, func(v TransactionView) error {
		got, _ := v.FindCulture(culture.ID)
		if got.Status != domain.CultureReleased {
			t.Fatalf("expected culture released, got %s", got.Status)
		}
		return nil
	})
	if got := pub.ofType(EventReleaseConfirmed); len(got) != 1 {
		t.Fatalf("expected one confirmation event, got %d", len(got))
	}

	if _, _, err := svc.ConfirmRelease(ctx, rel.ID); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Fatalf("expected second confirmation to fail, got %v", err)
	}
	if got := pub.ofType(EventReleaseConfirmed); len(got) != 1 {
		t.Fatalf("failed confirmation must not publish, got %d", len(got))
	}
	if _, _, err := svc.CreateRelease(ctx, release.Request{SourceType: domain.SourceCulture, SourceID: culture.ID, Recipient: domain.Recipient{Name: "x"}, TubeCount: 1}); !errors.Is(err, domain.ErrInvariantViolation) {
		t.Fatalf("expected release from released culture to fail, got %v", err)
	}
}

func TestReleaseCancelLeavesSourceAlone(t *testing.T) {
	pub := &capturePublisher{}
	svc := newTestService(t, WithEventPublisher(pub))
	ctx := context.Background()
	donor := mustDonor(t, svc)
	unit, _, err := svc.CreateStorageUnit(ctx, domain.StorageUnit{Holding: domain.Holding{DonorID: donor.ID, TubeCount: 2}})
	if err != nil {
		t.Fatalf("create storage: %v", err)
	}
	rel, _, err := svc.CreateRelease(ctx, release.Request{SourceType: domain.SourceStorage, SourceID: unit.ID, Recipient: domain.Recipient{Name: "Lab B"}, TubeCount: 2})
	if err != nil {
		t.Fatalf("create release: %v", err)
	}

	cancelled, _, err := svc.CancelRelease(ctx, rel.ID, "courier unavailable")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.ReleaseCancelled || cancelled.CancelReason != "courier unavailable" {
		t.Fatalf("unexpected cancellation %+v", cancelled)
	}
	if _, _, err := svc.ConfirmRelease(ctx, rel.ID); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Fatalf("expected confirm after cancel to fail, got %v", err)
	}
	_ = svc.View(ctx, func(v TransactionView) error {
		got, _ := v.FindStorageUnit(unit.ID)
		if got.Status != domain.StorageStored {
			t.Fatalf("expected storage untouched, got %s", got.Status)
		}
		return nil
	})
	if got := pub.ofType(EventReleaseCancelled); len(got) != 1 {
		t.Fatalf("expected cancellation event, got %d", len(got))
	}
}

func TestReleaseFromMasterBankHasNoSourceTransition(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	donor := mustDonor(t, svc)
	bank, _, err := svc.CreateMasterBank(ctx, domain.MasterBank{Holding: domain.Holding{DonorID: donor.ID, TubeCount: 8}})
	if err != nil {
		t.Fatalf("create bank: %v", err)
	}
	rel, _, err := svc.CreateRelease(ctx, release.Request{SourceType: domain.SourceMasterBank, SourceID: bank.ID, Recipient: domain.Recipient{Name: "Biobank"}, TubeCount: 2})
	if err != nil {
		t.Fatalf("create release: %v", err)
	}
	outcome, _, err := svc.ConfirmRelease(ctx, rel.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if outcome.SourceTransitioned {
		t.Fatalf("master bank confirmation must not transition the bank")
	}
	_ = svc.View(ctx, func(v TransactionView) error {
		got, _ := v.FindMasterBank(bank.ID)
		if got.Status != domain.MasterBankStored {
			t.Fatalf("expected bank untouched, got %s", got.Status)
		}
		return nil
	})
}
