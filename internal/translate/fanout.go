package translate

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Policy decides what a fan-out does when one target fails.
type Policy string

const (
	// PolicyPlaceholder attempts every target and stores Placeholder for failures.
	PolicyPlaceholder Policy = "placeholder"
	// PolicyFail cancels the remaining targets on the first failure and returns it.
	PolicyFail Policy = "fail"
)

// Placeholder is the caption stored for a target that could not be translated.
const Placeholder = ""

// ParsePolicy parses a policy name. Empty selects PolicyPlaceholder.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyPlaceholder:
		return PolicyPlaceholder, nil
	case PolicyFail:
		return PolicyFail, nil
	default:
		return "", fmt.Errorf("unknown translation policy %q", s)
	}
}

// Fanout translates one text into a set of target languages.
type Fanout struct {
	Provider Provider // nil fails every target with ErrNoProvider
	Targets  []string // language codes
	Policy   Policy
	// Concurrency bounds parallel provider calls. Zero means one per target.
	Concurrency int
}

// Translate runs a single translation. Failures are returned as *FailedError.
func (f *Fanout) Translate(ctx context.Context, text, source, target string) (string, error) {
	if f.Provider == nil {
		return "", &FailedError{Target: target, Cause: ErrNoProvider}
	}
	out, err := f.Provider.Translate(ctx, text, Locale(source), Locale(target))
	if err != nil {
		return "", &FailedError{Target: target, Cause: err}
	}
	return out, nil
}

// Run translates text from the detected language into every configured target.
// See RunTargets.
func (f *Fanout) Run(ctx context.Context, text, detected string) (Captions, []*FailedError, error) {
	return f.RunTargets(ctx, text, detected, f.Targets)
}

// RunTargets translates text from source into each of targets concurrently.
//
// A target equal to source receives text verbatim without a provider call.
// Under PolicyPlaceholder every target is attempted, failed targets hold
// Placeholder, failures are returned in the slice and the error is nil.
// Under PolicyFail the first failure cancels outstanding calls and is returned.
func (f *Fanout) RunTargets(ctx context.Context, text, source string, targets []string) (Captions, []*FailedError, error) {
	captions := make(Captions, len(targets))
	var (
		mu       sync.Mutex
		failures []*FailedError
	)

	g, gctx := errgroup.WithContext(ctx)
	limit := f.Concurrency
	if limit <= 0 {
		limit = len(targets)
	}
	if limit > 0 {
		g.SetLimit(limit)
	}

	for _, target := range targets {
		if target == source {
			mu.Lock()
			captions[target] = text
			mu.Unlock()
			continue
		}

		g.Go(func() error {
			out, err := f.Translate(gctx, text, source, target)

			mu.Lock()
			defer mu.Unlock()
			var failed *FailedError
			if errors.As(err, &failed) {
				failures = append(failures, failed)
				captions[target] = Placeholder
				if f.Policy == PolicyFail {
					return failed
				}
				return nil
			}
			captions[target] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, failures, err
	}
	sortFailures(failures, targets)
	return captions, failures, nil
}

// sortFailures orders failures like targets so results are deterministic.
func sortFailures(failures []*FailedError, targets []string) {
	rank := make(map[string]int, len(targets))
	for i, t := range targets {
		rank[t] = i
	}
	slices.SortStableFunc(failures, func(a, b *FailedError) int {
		return rank[a.Target] - rank[b.Target]
	})
}
