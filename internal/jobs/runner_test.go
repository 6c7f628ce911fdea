package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := m.Register(reg); err == nil {
		t.Error("expected an error registering twice")
	}
}

func TestRunner_RunOnce(t *testing.T) {
	tests := []struct {
		name        string
		fn          Func
		wantStatus  string
		wantErrType string
	}{
		{"success", func(context.Context) error { return nil }, StatusSuccess, ""},
		{"store failure", func(context.Context) error { return errors.New("redis down") }, StatusFailure, "store_error"},
		{"timeout", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}, StatusFailure, "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMetrics()
			r := NewRunner(m, nil)
			defer r.Stop()

			r.RunOnce(JobTypeIdempotencyCleanup, 20*time.Millisecond, tt.fn)

			if got := testutil.ToFloat64(m.jobsTotal.WithLabelValues(JobTypeIdempotencyCleanup, tt.wantStatus)); got != 1 {
				t.Errorf("%s{status=%s} = %v, want 1", MetricBackgroundJobsTotal, tt.wantStatus, got)
			}
			if tt.wantErrType != "" {
				if got := testutil.ToFloat64(m.jobErrors.WithLabelValues(JobTypeIdempotencyCleanup, tt.wantErrType)); got != 1 {
					t.Errorf("%s{error_type=%s} = %v, want 1", MetricBackgroundJobErrorsTotal, tt.wantErrType, got)
				}
			}
			if n := testutil.CollectAndCount(m.jobsDuration); n != 1 {
				t.Errorf("duration series = %d, want 1", n)
			}
		})
	}
}

func TestRunner_EveryUntilStop(t *testing.T) {
	r := NewRunner(nil, nil)

	var runs int32
	r.Every(JobTypeRateLimitCleanup, 2*time.Millisecond, func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&runs) < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	r.Stop()

	after := atomic.LoadInt32(&runs)
	if after < 3 {
		t.Fatalf("runs = %d, want at least 3", after)
	}
	time.Sleep(10 * time.Millisecond)
	if atomic.LoadInt32(&runs) != after {
		t.Error("job ran after Stop")
	}
}
