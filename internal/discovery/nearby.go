package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel/attribute"

	"github.com/echospot/echospot/internal/geo"
	"github.com/echospot/echospot/internal/spot"
	"github.com/echospot/echospot/internal/tracing"
)

// NearbySpot is a spot projection with its distance from the query point.
type NearbySpot struct {
	spot.Projection
	DistanceMeters float64 `json:"distance_meters"`
}

// Nearby returns the spots within radiusMeters of (lat, lon), closest first.
// Spots at equal distance keep their store order. A non-positive or NaN
// radius selects the configured default.
//
// Every projection is scanned on each call; there is no spatial index, so
// cost grows linearly with the number of stored spots.
func (s *Service) Nearby(ctx context.Context, lat, lon, radiusMeters float64) (out []NearbySpot, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "discovery.Nearby")
	defer func() { endSpan(err) }()

	if !(radiusMeters > 0) {
		radiusMeters = s.cfg.DefaultRadiusMeters
	}
	radiusMeters = min(radiusMeters, MaxRadiusMeters)

	projections, err := s.spots.ListProjections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list spots: %w", err)
	}

	out = make([]NearbySpot, 0)
	for _, p := range projections {
		d := geo.Distance(lat, lon, p.Latitude, p.Longitude)
		if d <= radiusMeters {
			out = append(out, NearbySpot{Projection: p, DistanceMeters: d})
		}
	}
	slices.SortStableFunc(out, func(a, b NearbySpot) int {
		switch {
		case a.DistanceMeters < b.DistanceMeters:
			return -1
		case a.DistanceMeters > b.DistanceMeters:
			return 1
		}
		return 0
	})

	tracing.SetAttributes(ctx,
		attribute.Int("discovery.scanned", len(projections)),
		attribute.Int("discovery.matched", len(out)))
	s.logger.DebugContext(ctx, "nearby query",
		slog.Float64("radius_meters", radiusMeters),
		slog.Int("scanned", len(projections)),
		slog.Int("matched", len(out)))

	return out, nil
}
