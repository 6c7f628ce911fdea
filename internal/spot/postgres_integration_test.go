//go:build integration

package spot_test

import (
	"context"
	"errors"
	"testing"

	"github.com/echospot/echospot/internal/db/dbtest"
	"github.com/echospot/echospot/internal/spot"
	"github.com/lib/pq"
)

// Run with: go test -tags=integration -v ./internal/spot/...
func TestPostgresRepository(t *testing.T) {
	conn := dbtest.StartPostgres(t)
	repo := spot.NewPostgresRepository(conn, nil)
	ctx := context.Background()

	summary := "Fishing boats at dawn."
	first := &spot.Spot{
		Username:           "asha",
		SpotName:           "Harbour",
		Latitude:           12.9716,
		Longitude:          77.5946,
		Geohash:            "tdr1w4v",
		OriginalLanguage:   "hi",
		ImageURL:           "https://cdn.test/spotimages/images/1.jpg",
		AudioURL:           "https://cdn.test/audiofiles/audio/1.mp3",
		Transcription:      "नमस्ते",
		TranslatedCaptions: map[string]string{"hi": "नमस्ते", "en": "hello"},
		Summary:            &summary,
	}
	second := &spot.Spot{
		Username:         "asha",
		SpotName:         "Harbour again",
		Latitude:         12.9716000004,
		Longitude:        77.5946,
		Geohash:          "tdr1w4v",
		OriginalLanguage: "en",
		ImageURL:         "https://cdn.test/spotimages/images/2.jpg",
		AudioURL:         "https://cdn.test/audiofiles/audio/2.mp3",
	}

	for _, s := range []*spot.Spot{first, second} {
		if err := repo.Insert(ctx, s); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
		if s.ID == "" || s.CreatedAt.IsZero() {
			t.Fatalf("expected ID and CreatedAt to be populated: %+v", s)
		}
	}

	t.Run("FindNear returns insertion order", func(t *testing.T) {
		found, err := repo.FindNear(ctx, "asha", 12.9716, 77.5946, 1e-6)
		if err != nil {
			t.Fatalf("FindNear() error = %v", err)
		}
		if len(found) != 2 {
			t.Fatalf("expected 2 matches, got %d", len(found))
		}
		if found[0].ID != first.ID {
			t.Errorf("first match = %s, want %s", found[0].ID, first.ID)
		}
		if found[0].TranslatedCaptions["hi"] != "नमस्ते" {
			t.Errorf("captions not round-tripped: %v", found[0].TranslatedCaptions)
		}
		if found[0].Summary == nil || *found[0].Summary != summary {
			t.Errorf("summary not round-tripped: %v", found[0].Summary)
		}
		if found[1].Summary != nil {
			t.Errorf("expected nil summary, got %q", *found[1].Summary)
		}
		if len(found[1].TranslatedCaptions) != 0 {
			t.Errorf("expected empty captions, got %v", found[1].TranslatedCaptions)
		}
	})

	t.Run("IncrementViews", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			if err := repo.IncrementViews(ctx, first.ID); err != nil {
				t.Fatalf("IncrementViews() error = %v", err)
			}
		}
		found, _ := repo.FindNear(ctx, "asha", 12.9716, 77.5946, 1e-6)
		if found[0].ViewCount != 3 {
			t.Errorf("ViewCount = %d, want 3", found[0].ViewCount)
		}
		if err := repo.IncrementViews(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, spot.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("CountByUsername and ListByUsername", func(t *testing.T) {
		n, err := repo.CountByUsername(ctx, "asha")
		if err != nil || n != 2 {
			t.Errorf("CountByUsername() = %d, %v; want 2", n, err)
		}
		list, err := repo.ListByUsername(ctx, "asha")
		if err != nil || len(list) != 2 || list[0].ID != first.ID {
			t.Errorf("ListByUsername() = %+v, %v", list, err)
		}
		all, err := repo.ListProjections(ctx)
		if err != nil || len(all) != 2 {
			t.Errorf("ListProjections() = %d rows, %v", len(all), err)
		}
	})

	t.Run("constraint violation surfaces pq.Error", func(t *testing.T) {
		bad := &spot.Spot{Username: "asha", SpotName: "nowhere", Latitude: 95, Longitude: 0, ImageURL: "x", AudioURL: "y"}
		err := repo.Insert(ctx, bad)
		var pqErr *pq.Error
		if !errors.As(err, &pqErr) {
			t.Fatalf("expected *pq.Error, got %v", err)
		}
		if pqErr.Constraint == "" {
			t.Errorf("expected constraint name, got %+v", pqErr)
		}
	})
}
