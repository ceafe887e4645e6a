package chaos

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"

	"github.com/resilitics/resilitics/internal/impact"
	"github.com/resilitics/resilitics/internal/metrics"
)

// Scheduler terminates random pods from the plan's targets on a fixed
// interval until its context is cancelled.
type Scheduler struct {
	client *Client
	plan   *Plan
	log    *EventLog
	logger *zap.Logger
	rng    *rand.Rand
}

// NewScheduler builds a scheduler for the given plan. A nil event log keeps
// events in memory only.
func NewScheduler(client *Client, plan *Plan, eventLog *EventLog, logger *zap.Logger) (*Scheduler, error) {
	if client == nil {
		return nil, errors.New("client cannot be nil")
	}
	if plan == nil {
		return nil, errors.New("plan cannot be nil")
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if eventLog == nil {
		eventLog = &EventLog{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		client: client,
		plan:   plan,
		log:    eventLog,
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Events returns the attempts recorded so far.
func (s *Scheduler) Events() []impact.Event {
	return s.log.Events()
}

// Run strikes immediately and then once per interval. Cancellation is the
// normal way to stop a run and is not an error.
func (s *Scheduler) Run(ctx context.Context) error {
	metrics.ChaosRunActive.Set(1)
	defer metrics.ChaosRunActive.Set(0)

	s.logger.Info("chaos run starting",
		zap.String("plan", s.plan.Name),
		zap.Int("interval_seconds", s.plan.IntervalSeconds),
		zap.Int("count", s.plan.Count),
		zap.Bool("dry_run", s.plan.DryRunEnabled()))

	ticker := time.NewTicker(time.Duration(s.plan.IntervalSeconds) * time.Second)
	defer ticker.Stop()

loop:
	for {
		if err := s.strike(ctx); err != nil {
			if ctx.Err() != nil {
				break loop
			}
			return err
		}
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
		}
	}

	s.logger.Info("chaos run stopped", zap.Int("events", len(s.log.Events())))
	return nil
}

// strike terminates one batch of Count pods. Victims are picked fresh for
// each termination so a batch never kills the same pod twice.
func (s *Scheduler) strike(ctx context.Context) error {
	for i := 0; i < s.plan.Count; i++ {
		if err := s.strikeOne(ctx); err != nil {
			return err
		}
	}
	return nil
}

// strikeOne picks and terminates a single pod. Selection failures and empty
// target pools are logged and skipped; the run keeps its cadence.
func (s *Scheduler) strikeOne(ctx context.Context) error {
	victim, err := s.pickVictim(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("victim selection failed", zap.Error(err))
		return nil
	}
	if victim == nil {
		s.logger.Warn("no eligible pods in any target")
		return nil
	}
	return s.terminate(ctx, victim)
}

// pickVictim returns one pod chosen uniformly across all targets, or nil
// when nothing is eligible.
func (s *Scheduler) pickVictim(ctx context.Context) (*corev1.Pod, error) {
	var eligible []corev1.Pod
	for _, target := range s.plan.Targets {
		pods, err := s.client.ListPods(ctx, target.Namespace, target.Selector)
		if err != nil {
			return nil, err
		}
		eligible = append(eligible, pods...)
	}
	if len(eligible) == 0 {
		return nil, nil
	}
	return &eligible[s.rng.Intn(len(eligible))], nil
}

// terminate deletes the pod (or pretends to, in dry-run mode) and records
// the attempt. Delete failures become DELETE_ERROR rows, not run failures.
func (s *Scheduler) terminate(ctx context.Context, pod *corev1.Pod) error {
	now := time.Now()

	// Usage has to be read before the delete; afterwards there is nothing
	// left to measure.
	usage, err := s.client.GetPodUsage(ctx, pod.Namespace, pod.Name)
	if err != nil {
		s.logger.Debug("usage snapshot unavailable",
			zap.String("pod", pod.Name), zap.Error(err))
	}

	outcome := impact.OutcomeDeleted
	if s.plan.DryRunEnabled() {
		outcome = impact.OutcomeDryRun
	} else if err := s.client.DeletePod(ctx, pod.Namespace, pod.Name, int64(s.plan.GraceSeconds)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Error("pod delete failed",
			zap.String("pod", pod.Name),
			zap.String("namespace", pod.Namespace),
			zap.Error(err))
		outcome = impact.OutcomeDeleteError
	}

	metrics.ChaosTerminationsTotal.WithLabelValues(pod.Namespace, outcomeLabel(outcome)).Inc()

	fields := []zap.Field{
		zap.String("pod", pod.Name),
		zap.String("namespace", pod.Namespace),
		zap.String("status", string(outcome)),
	}
	if usage != nil {
		fields = append(fields,
			zap.Int64("cpu_milli", usage.CPUMilli),
			zap.Int64("memory_bytes", usage.MemoryBytes))
	}
	s.logger.Info("termination recorded", fields...)

	return s.log.Record(impact.Event{
		Pod:     pod.Name,
		Time:    now.UnixMilli(),
		Outcome: outcome,
	})
}

// outcomeLabel maps an event outcome onto the low-cardinality metric label.
func outcomeLabel(o impact.Outcome) string {
	switch o {
	case impact.OutcomeDeleted:
		return "deleted"
	case impact.OutcomeDryRun:
		return "dry_run"
	default:
		return "error"
	}
}
