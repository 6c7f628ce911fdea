package discovery

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/echospot/echospot/internal/badge"
	"github.com/echospot/echospot/internal/geo"
	"github.com/echospot/echospot/internal/spot"
	"github.com/echospot/echospot/internal/user"
)

// metersPerDegree is the length of one degree of latitude on the haversine sphere.
const metersPerDegree = geo.EarthRadiusMeters * math.Pi / 180

func strPtr(s string) *string { return &s }

type fixture struct {
	svc    *Service
	spots  *spot.InMemoryRepository
	users  *user.InMemoryRepository
	badges *badge.InMemoryRepository
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		spots:  spot.NewInMemoryRepository(),
		users:  user.NewInMemoryRepository(),
		badges: badge.NewInMemoryRepository(),
	}
	counter := badge.NewCounter(f.badges, f.spots, f.users, 10)
	f.svc = NewService(f.spots, f.users, counter, cfg, nil)
	return f
}

func (f *fixture) insert(t *testing.T, s *spot.Spot) *spot.Spot {
	t.Helper()
	if err := f.spots.Insert(context.Background(), s); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	return s
}

func TestNearby_RadiusAndOrder(t *testing.T) {
	f := newFixture(t, Config{})

	// Inserted out of order to check sorting. The 3000 m spot sits just inside.
	f.insert(t, &spot.Spot{Username: "u", SpotName: "far", Latitude: 5000 / metersPerDegree})
	f.insert(t, &spot.Spot{Username: "u", SpotName: "edge", Latitude: (3000 - 1e-6) / metersPerDegree})
	f.insert(t, &spot.Spot{Username: "u", SpotName: "origin"})
	f.insert(t, &spot.Spot{Username: "u", SpotName: "mid", Latitude: 1500 / metersPerDegree})

	got, err := f.svc.Nearby(context.Background(), 0, 0, 0)
	if err != nil {
		t.Fatalf("Nearby() error = %v", err)
	}

	want := []string{"origin", "mid", "edge"}
	if len(got) != len(want) {
		t.Fatalf("got %d spots, want %d: %+v", len(got), len(want), got)
	}
	for i, name := range want {
		if got[i].SpotName != name {
			t.Errorf("result[%d] = %q, want %q", i, got[i].SpotName, name)
		}
	}
	if got[0].DistanceMeters != 0 {
		t.Errorf("origin distance = %v", got[0].DistanceMeters)
	}
	if math.Abs(got[1].DistanceMeters-1500) > 0.01 {
		t.Errorf("mid distance = %v, want ~1500", got[1].DistanceMeters)
	}
}

func TestNearby_Radius(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		radius float64
		want   int
	}{
		{name: "explicit radius", radius: 6000, want: 2},
		{name: "configured default", cfg: Config{DefaultRadiusMeters: 100}, want: 1},
		{name: "capped at max", radius: 10 * MaxRadiusMeters, want: 3},
		{name: "NaN uses default", cfg: Config{DefaultRadiusMeters: 100}, radius: math.NaN(), want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.cfg)
			f.insert(t, &spot.Spot{Username: "u", SpotName: "origin"})
			f.insert(t, &spot.Spot{Username: "u", SpotName: "5km", Latitude: 5000 / metersPerDegree})
			f.insert(t, &spot.Spot{Username: "u", SpotName: "40km", Latitude: 40_000 / metersPerDegree})
			f.insert(t, &spot.Spot{Username: "u", SpotName: "60km", Latitude: 60_000 / metersPerDegree})

			got, err := f.svc.Nearby(context.Background(), 0, 0, tt.radius)
			if err != nil {
				t.Fatalf("Nearby() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d spots, want %d", len(got), tt.want)
			}
		})
	}
}

func TestNearby_EmptyStore(t *testing.T) {
	f := newFixture(t, Config{})
	got, err := f.svc.Nearby(context.Background(), 10, 10, 0)
	if err != nil {
		t.Fatalf("Nearby() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
}

func TestIntro_FirstWins(t *testing.T) {
	f := newFixture(t, Config{})
	f.insert(t, &spot.Spot{Username: "asha", SpotName: "first", Latitude: 12.5, Longitude: 77.6, ImageURL: "https://cdn/1.jpg"})
	f.insert(t, &spot.Spot{Username: "asha", SpotName: "second", Latitude: 12.500001, Longitude: 77.6})
	f.insert(t, &spot.Spot{Username: "ravi", SpotName: "other user", Latitude: 12.5, Longitude: 77.6})

	intro, err := f.svc.Intro(context.Background(), "asha", 12.500004, 77.599996)
	if err != nil {
		t.Fatalf("Intro() error = %v", err)
	}
	if intro.SpotName != "first" || intro.ImageURL != "https://cdn/1.jpg" {
		t.Errorf("unexpected intro %+v", intro)
	}
}

func TestLookup_NotFound(t *testing.T) {
	f := newFixture(t, Config{})
	f.insert(t, &spot.Spot{Username: "asha", Latitude: 12.5, Longitude: 77.6})
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"intro wrong user", func() error { _, err := f.svc.Intro(ctx, "ravi", 12.5, 77.6); return err }},
		{"intro outside tolerance", func() error { _, err := f.svc.Intro(ctx, "asha", 12.5001, 77.6); return err }},
		{"full spot", func() error { _, err := f.svc.FullSpot(ctx, "asha", 0, 0); return err }},
		{"summary", func() error { _, err := f.svc.Summary(ctx, "asha", 1, 1); return err }},
		{"translation", func() error { _, err := f.svc.Translation(ctx, "asha", 1, 1, "French"); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, spot.ErrNotFound) {
				t.Errorf("expected spot.ErrNotFound, got %v", err)
			}
		})
	}
}

func TestFullSpot_CountsViews(t *testing.T) {
	f := newFixture(t, Config{})
	s := f.insert(t, &spot.Spot{Username: "asha", SpotName: "harbour", Latitude: 1, Longitude: 2})

	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 3; i++ {
		got, err := f.svc.FullSpot(ctx, "asha", 1, 2)
		if err != nil {
			t.Fatalf("FullSpot() error = %v", err)
		}
		if got.ID != s.ID {
			t.Errorf("id = %q, want %q", got.ID, s.ID)
		}
	}
	cancel()
	f.svc.Wait()

	matches, _ := f.spots.FindNear(context.Background(), "asha", 1, 2, geo.IdentityTolerance)
	if len(matches) != 1 || matches[0].ViewCount != 3 {
		t.Errorf("view count = %+v, want 3", matches)
	}
}

func TestTranslation(t *testing.T) {
	f := newFixture(t, Config{})
	f.insert(t, &spot.Spot{
		Username: "asha", Latitude: 1, Longitude: 1,
		TranslatedCaptions: map[string]string{"en": "Hello", "fr": "Bonjour", "hi": ""},
	})
	ctx := context.Background()

	tests := []struct {
		name     string
		language string
		want     *Caption
		wantErr  error
	}{
		{name: "by name", language: "French", want: &Caption{Language: "French", Code: "fr", Caption: "Bonjour"}},
		{name: "case insensitive", language: "english", want: &Caption{Language: "English", Code: "en", Caption: "Hello"}},
		{name: "by code", language: "fr", want: &Caption{Language: "French", Code: "fr", Caption: "Bonjour"}},
		{name: "placeholder caption", language: "Hindi", want: &Caption{Language: "Hindi", Code: "hi", Caption: ""}},
		{name: "missing caption", language: "German", wantErr: ErrTranslationNotFound},
		{name: "unsupported", language: "Klingon", wantErr: ErrLanguageNotSupported},
		{name: "empty", language: "", wantErr: ErrLanguageNotSupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.Translation(ctx, "asha", 1, 1, tt.language)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Translation() error = %v", err)
			}
			if *got != *tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSummary(t *testing.T) {
	f := newFixture(t, Config{})
	f.insert(t, &spot.Spot{Username: "asha", Latitude: 1, Longitude: 1, Summary: strPtr("Boats at dawn.")})
	f.insert(t, &spot.Spot{Username: "asha", Latitude: 2, Longitude: 2})
	ctx := context.Background()

	got, err := f.svc.Summary(ctx, "asha", 1, 1)
	if err != nil || got != "Boats at dawn." {
		t.Errorf("Summary() = %q, %v", got, err)
	}
	if _, err := f.svc.Summary(ctx, "asha", 2, 2); !errors.Is(err, ErrSummaryUnavailable) {
		t.Errorf("expected ErrSummaryUnavailable, got %v", err)
	}
}

func TestProfile(t *testing.T) {
	ctx := context.Background()

	t.Run("spots without user row", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.insert(t, &spot.Spot{Username: "asha", SpotName: "a", Latitude: 1})
		f.insert(t, &spot.Spot{Username: "asha", SpotName: "b", Latitude: 2})
		f.insert(t, &spot.Spot{Username: "ravi", SpotName: "c", Latitude: 3})
		_, _ = f.badges.Add(ctx, "asha", 20)

		p, err := f.svc.Profile(ctx, "asha")
		if err != nil {
			t.Fatalf("Profile() error = %v", err)
		}
		if p.PostCount != 2 || len(p.Spots) != 2 || p.BadgeScore != 20 {
			t.Errorf("unexpected profile %+v", p)
		}
		if p.PreferredLanguage != user.DefaultPreferredLanguage {
			t.Errorf("preferred language = %q", p.PreferredLanguage)
		}
		if p.Spots[0].SpotName != "a" || p.Spots[1].SpotName != "b" {
			t.Errorf("spots out of order: %+v", p.Spots)
		}
	})

	t.Run("user row without spots", func(t *testing.T) {
		f := newFixture(t, Config{})
		if err := f.users.SetPostCount(ctx, "meera", 0); err != nil {
			t.Fatalf("SetPostCount() error = %v", err)
		}

		p, err := f.svc.Profile(ctx, "meera")
		if err != nil {
			t.Fatalf("Profile() error = %v", err)
		}
		if p.Spots == nil || len(p.Spots) != 0 || p.BadgeScore != 0 {
			t.Errorf("unexpected profile %+v", p)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		f := newFixture(t, Config{})
		if _, err := f.svc.Profile(ctx, "nobody"); !errors.Is(err, spot.ErrNotFound) {
			t.Errorf("expected spot.ErrNotFound, got %v", err)
		}
	})
}

func TestNewService_Defaults(t *testing.T) {
	svc := NewService(spot.NewInMemoryRepository(), nil, nil, Config{DefaultRadiusMeters: 2 * MaxRadiusMeters}, nil)
	if svc.cfg.DefaultRadiusMeters != MaxRadiusMeters {
		t.Errorf("default radius = %v", svc.cfg.DefaultRadiusMeters)
	}
	if svc.cfg.MatchTolerance != geo.LookupTolerance {
		t.Errorf("tolerance = %v", svc.cfg.MatchTolerance)
	}
	if svc.cfg.ViewTimeout != defaultViewTimeout {
		t.Errorf("view timeout = %v", svc.cfg.ViewTimeout)
	}
}
