package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goalpath/planner-api/internal/domain"
)

func TestMemoryStorePlansAreScopedAndOrdered(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		if err := s.PutPlan(ctx, &domain.Plan{ID: id, UserID: "u1", TargetAmount: 100, CreatedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatalf("PutPlan: %v", err)
		}
	}
	_ = s.PutPlan(ctx, &domain.Plan{ID: "x", UserID: "u2", TargetAmount: 100})

	plans, err := s.ListPlans(ctx, "u1")
	if err != nil {
		t.Fatalf("ListPlans: %v", err)
	}
	if len(plans) != 3 || plans[0].ID != "c" || plans[2].ID != "a" {
		t.Fatalf("expected newest first for u1 only, got %+v", plans)
	}

	if _, err := s.GetPlan(ctx, "u2", "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected other user's plan to be invisible, got %v", err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.PutPlan(ctx, &domain.Plan{ID: "p", UserID: "u", Milestones: []domain.Milestone{{ID: "m1", Title: "one"}}})

	got, _ := s.GetPlan(ctx, "u", "p")
	got.Milestones[0].Title = "mutated"

	again, _ := s.GetPlan(ctx, "u", "p")
	if again.Milestones[0].Title != "one" {
		t.Fatal("caller mutation leaked into the store")
	}
}

func TestMemoryStoreProgress(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.PutPlan(ctx, &domain.Plan{ID: "p", UserID: "u", TargetAmount: 500, CurrentAmount: 100})

	plan, err := s.AddToCurrentAmount(ctx, "u", "p", 50, time.Now())
	if err != nil {
		t.Fatalf("AddToCurrentAmount: %v", err)
	}
	if plan.CurrentAmount != 150 {
		t.Fatalf("expected 150, got %v", plan.CurrentAmount)
	}
	if _, err := s.AddToCurrentAmount(ctx, "u", "missing", 50, time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	for _, id := range []string{"0001", "0002", "0003"} {
		_ = s.PutProgress(ctx, &domain.ProgressEntry{ID: id, PlanID: "p", UserID: "u", Amount: 1})
	}
	_ = s.PutProgress(ctx, &domain.ProgressEntry{ID: "9999", PlanID: "other", UserID: "u", Amount: 1})

	entries, _ := s.ListProgress(ctx, "u", "p", 0)
	if len(entries) != 3 || entries[0].ID != "0003" || entries[2].ID != "0001" {
		t.Fatalf("expected most recent first, got %+v", entries)
	}
	limited, _ := s.ListProgress(ctx, "u", "p", 2)
	if len(limited) != 2 || limited[0].ID != "0003" {
		t.Fatalf("unexpected limited history %+v", limited)
	}
}

func TestMemoryStoreDeleteAndUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	plan := &domain.Plan{ID: "p", UserID: "u"}
	_ = s.PutPlan(ctx, plan)

	if err := s.DeletePlan(ctx, "u", "p"); err != nil {
		t.Fatalf("DeletePlan: %v", err)
	}
	if err := s.DeletePlan(ctx, "u", "p"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := s.UpdatePlan(ctx, plan, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected UpdatePlan on deleted plan to fail, got %v", err)
	}
}

func TestMemoryStoreProfilesAndPurge(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	created, err := s.CreateProfileIfAbsent(ctx, &domain.UserProfile{ID: "u", Username: "first"})
	if err != nil || !created {
		t.Fatalf("expected profile creation, got %v %v", created, err)
	}
	created, _ = s.CreateProfileIfAbsent(ctx, &domain.UserProfile{ID: "u", Username: "second"})
	if created {
		t.Fatal("expected existing profile to be kept")
	}
	p, _ := s.GetProfile(ctx, "u")
	if p.Username != "first" {
		t.Fatalf("profile overwritten: %+v", p)
	}

	_ = s.PutAccount(ctx, &domain.BankAccount{ID: "a1", UserID: "u", IsActive: true})
	_ = s.PutAccount(ctx, &domain.BankAccount{ID: "a2", UserID: "v", IsActive: false})
	active, _ := s.ListActiveAccounts(ctx)
	if len(active) != 1 || active[0].ID != "a1" {
		t.Fatalf("unexpected active accounts %+v", active)
	}

	keys, _ := s.ListUserKeys(ctx, "u")
	if len(keys) != 2 {
		t.Fatalf("expected profile and account keys, got %+v", keys)
	}
	if err := s.DeleteKeys(ctx, keys); err != nil {
		t.Fatalf("DeleteKeys: %v", err)
	}
	if keys, _ = s.ListUserKeys(ctx, "u"); len(keys) != 0 {
		t.Fatalf("expected empty partition, got %+v", keys)
	}
}
