//go:build integration

package badge_test

import (
	"context"
	"sync"
	"testing"

	"github.com/echospot/echospot/internal/badge"
	"github.com/echospot/echospot/internal/db/dbtest"
)

func TestPostgresRepository_AtomicAdd(t *testing.T) {
	conn := dbtest.StartPostgres(t)
	repo := badge.NewPostgresRepository(conn, nil)
	ctx := context.Background()

	score, err := repo.Add(ctx, "asha", 10)
	if err != nil || score != 10 {
		t.Fatalf("first Add() = %d, %v; want 10", score, err)
	}

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Add(ctx, "asha", 10); err != nil {
				t.Errorf("Add() error = %v", err)
			}
		}()
	}
	wg.Wait()

	score, err = repo.Score(ctx, "asha")
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if want := 10 + n*10; score != want {
		t.Errorf("score = %d, want %d", score, want)
	}

	missing, err := repo.Score(ctx, "nobody")
	if err != nil || missing != 0 {
		t.Errorf("Score(nobody) = %d, %v; want 0", missing, err)
	}
}
