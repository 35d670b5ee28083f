package repository

import (
	"context"
	"testing"
	"time"
)

func TestSubscriberAdd_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostgresSubscriberRepo(db)
	ctx := context.Background()

	added, err := repo.Add(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("Addに失敗: %v", err)
	}
	if !added {
		t.Error("1回目のAddがfalseを返した")
	}

	added, err = repo.Add(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("2回目のAddに失敗: %v", err)
	}
	if added {
		t.Error("登録済みのAddがtrueを返した")
	}
}

func TestSubscriberFind(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostgresSubscriberRepo(db)
	ctx := context.Background()

	if _, err := repo.Add(ctx, "a@example.com"); err != nil {
		t.Fatalf("Addに失敗: %v", err)
	}

	sub, err := repo.Find(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("Findに失敗: %v", err)
	}
	if sub == nil || sub.Email != "a@example.com" {
		t.Fatalf("sub = %+v", sub)
	}
	if sub.LastSent != nil {
		t.Error("未配信の購読者にlast_sentが設定されている")
	}

	missing, err := repo.Find(ctx, "ghost@example.com")
	if err != nil {
		t.Fatalf("未登録のFindに失敗: %v", err)
	}
	if missing != nil {
		t.Errorf("未登録のFindが%+vを返した", missing)
	}
}

func TestSubscriberRemove(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostgresSubscriberRepo(db)
	ctx := context.Background()

	if _, err := repo.Add(ctx, "a@example.com"); err != nil {
		t.Fatalf("Addに失敗: %v", err)
	}

	removed, err := repo.Remove(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("Removeに失敗: %v", err)
	}
	if !removed {
		t.Error("登録済みのRemoveがfalseを返した")
	}

	removed, err = repo.Remove(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("2回目のRemoveに失敗: %v", err)
	}
	if removed {
		t.Error("未登録のRemoveがtrueを返した")
	}
}

func TestSubscriberList_OrderedByEmail(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostgresSubscriberRepo(db)
	ctx := context.Background()

	for _, email := range []string{"c@example.com", "a@example.com", "b@example.com"} {
		if _, err := repo.Add(ctx, email); err != nil {
			t.Fatalf("Addに失敗: %v", err)
		}
	}

	subs, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("Listに失敗: %v", err)
	}

	want := []string{"a@example.com", "b@example.com", "c@example.com"}
	if len(subs) != len(want) {
		t.Fatalf("件数 = %d, want %d", len(subs), len(want))
	}
	for i, email := range want {
		if subs[i].Email != email {
			t.Errorf("subs[%d].Email = %q, want %q", i, subs[i].Email, email)
		}
	}
}

func TestSubscriberUpdateLastSent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostgresSubscriberRepo(db)
	ctx := context.Background()

	if _, err := repo.Add(ctx, "a@example.com"); err != nil {
		t.Fatalf("Addに失敗: %v", err)
	}

	sentAt := time.Date(2025, 1, 13, 8, 30, 0, 0, time.UTC)
	if err := repo.UpdateLastSent(ctx, "a@example.com", sentAt); err != nil {
		t.Fatalf("UpdateLastSentに失敗: %v", err)
	}

	sub, err := repo.Find(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("Findに失敗: %v", err)
	}
	if sub.LastSent == nil {
		t.Fatal("last_sentが更新されていない")
	}
	if !sub.LastSent.UTC().Equal(sentAt) {
		t.Errorf("last_sent = %v, want %v", sub.LastSent.UTC(), sentAt)
	}
}
