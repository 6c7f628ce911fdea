package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestInMemoryRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()

	if _, err := repo.Get(ctx, "k1"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("Get() on empty repo error = %v, want ErrKeyNotFound", err)
	}

	if err := repo.Reserve(ctx, &Record{Key: "k1", Method: "POST", Route: "/spots"}); err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}

	got, err := repo.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusProcessing || got.CreatedAt.IsZero() {
		t.Errorf("reserved record = %+v, want processing with CreatedAt", got)
	}

	if err := repo.Reserve(ctx, &Record{Key: "k1"}); !errors.Is(err, ErrKeyExists) {
		t.Errorf("second Reserve() error = %v, want ErrKeyExists", err)
	}

	body := `{"spot":{"id":"abc"}}`
	if err := repo.Complete(ctx, &Record{
		Key:                "k1",
		Method:             "POST",
		Route:              "/spots",
		ResponseBody:       body,
		ResponseHash:       ComputeResponseHash(body),
		ResponseStatusCode: 201,
	}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	got, err = repo.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusCompleted || got.ResponseStatusCode != 201 || got.ResponseBody != body {
		t.Errorf("completed record = %+v", got)
	}

	got.ResponseBody = "mutated"
	if again, _ := repo.Get(ctx, "k1"); again.ResponseBody != body {
		t.Error("Get() should return a copy")
	}

	if err := repo.Release(ctx, "k1"); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if _, err := repo.Get(ctx, "k1"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get() after Release error = %v, want ErrKeyNotFound", err)
	}
}

func TestInMemoryRepository_CompleteUnknownKey(t *testing.T) {
	repo := NewInMemoryRepository()
	if err := repo.Complete(context.Background(), &Record{Key: "missing"}); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Complete() error = %v, want ErrKeyNotFound", err)
	}
}

func TestInMemoryRepository_ReserveInvalidKey(t *testing.T) {
	repo := NewInMemoryRepository()
	if err := repo.Reserve(context.Background(), &Record{Key: ""}); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Reserve() error = %v, want ErrInvalidKey", err)
	}
}

func TestInMemoryRepository_ConcurrentReserve(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()

	const workers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.Reserve(ctx, &Record{Key: "same"}); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("winners = %d, want exactly 1", winners)
	}
}

func TestCleanupOldKeys(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	if err := repo.Reserve(ctx, &Record{Key: "old", CreatedAt: now.Add(-25 * time.Hour)}); err != nil {
		t.Fatal(err)
	}
	if err := repo.Reserve(ctx, &Record{Key: "recent", CreatedAt: now.Add(-time.Hour)}); err != nil {
		t.Fatal(err)
	}

	deleted, err := CleanupOldKeys(ctx, repo, DefaultExpiry)
	if err != nil {
		t.Fatalf("CleanupOldKeys() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if _, err := repo.Get(ctx, "old"); !errors.Is(err, ErrKeyNotFound) {
		t.Error("old key should be gone")
	}
	if _, err := repo.Get(ctx, "recent"); err != nil {
		t.Errorf("recent key should remain: %v", err)
	}
}
