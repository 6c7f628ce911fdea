package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/echospot/echospot/internal/spot"
	"github.com/echospot/echospot/internal/user"
)

// Profile aggregates a user's row, badge score and spots.
type Profile struct {
	Username          string            `json:"username"`
	ProfilePic        string            `json:"profile_pic"`
	PreferredLanguage string            `json:"preferlng"`
	PostCount         int               `json:"post_count"`
	BadgeScore        int               `json:"badge_score"`
	Spots             []spot.Projection `json:"spots"`
}

// Profile returns the profile of username. A user without a row but with
// spots gets defaults; a user with neither is spot.ErrNotFound.
func (s *Service) Profile(ctx context.Context, username string) (*Profile, error) {
	spots, err := s.spots.ListByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to list user spots: %w", err)
	}

	var row *user.User
	if s.users != nil {
		row, err = s.users.Get(ctx, username)
		switch {
		case errors.Is(err, user.ErrNotFound):
			row = nil
		case err != nil:
			return nil, fmt.Errorf("failed to load user: %w", err)
		}
	}

	if row == nil && len(spots) == 0 {
		return nil, spot.ErrNotFound
	}

	p := &Profile{
		Username:          username,
		PreferredLanguage: user.DefaultPreferredLanguage,
		PostCount:         len(spots),
		Spots:             spots,
	}
	if p.Spots == nil {
		p.Spots = []spot.Projection{}
	}
	if row != nil {
		p.ProfilePic = row.ProfilePic
		p.PreferredLanguage = row.PreferredLanguage
		p.PostCount = row.PostCount
	}

	if s.badges != nil {
		if p.BadgeScore, err = s.badges.Score(ctx, username); err != nil {
			return nil, fmt.Errorf("failed to load badge score: %w", err)
		}
	}
	return p, nil
}
