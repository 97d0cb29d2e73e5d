package call

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/group-call-bot/internal/domain"
	"github.com/acme/group-call-bot/internal/queue"
	"github.com/acme/group-call-bot/internal/telemetry"
	"github.com/acme/group-call-bot/internal/telephony"
	"github.com/acme/group-call-bot/pkg/logger"
)

const publishTimeout = 5 * time.Second

// OutcomePublisher receives a record of every finished run.
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, msg queue.OutcomeMessage) error
}

// Options tunes the orchestration loop.
type Options struct {
	CallbackURL     string
	DefaultAudioURL string
	PollInterval    time.Duration
	ConnectTimeout  time.Duration
}

// Orchestrator places a group call, waits for it to connect and starts the
// audio prompt. Each run is independent and holds no shared call state.
type Orchestrator struct {
	platform  telephony.Platform
	publisher OutcomePublisher
	metrics   *telemetry.Metrics
	logger    *logger.Logger
	opts      Options
	tracer    trace.Tracer
	now       func() time.Time
}

// NewOrchestrator wires the orchestrator. publisher and metrics may be nil.
func NewOrchestrator(platform telephony.Platform, publisher OutcomePublisher, metrics *telemetry.Metrics, lg *logger.Logger, opts Options) *Orchestrator {
	return &Orchestrator{
		platform:  platform,
		publisher: publisher,
		metrics:   metrics,
		logger:    lg,
		opts:      opts,
		tracer:    otel.Tracer("callbot.orchestrator"),
		now:       time.Now,
	}
}

// StartCallInput is the inbound request after parsing.
type StartCallInput struct {
	Users        []string
	AudioFileURL string
}

// StartCall runs one orchestration. A timeout is returned as an outcome, not
// an error. Cancellation of ctx aborts the run with ctx's error.
func (o *Orchestrator) StartCall(ctx context.Context, in StartCallInput) (*domain.Outcome, error) {
	audioURL := strings.TrimSpace(in.AudioFileURL)
	if audioURL == "" {
		audioURL = strings.TrimSpace(o.opts.DefaultAudioURL)
	}
	req := domain.CallRequest{Participants: in.Users, AudioURL: audioURL}
	if err := req.Validate(); err != nil {
		o.metrics.ObserveOutcome(telemetry.OutcomeRejected)
		return nil, err
	}
	participants := req.DistinctParticipants()

	ctx, span := o.tracer.Start(ctx, "call.orchestrate", trace.WithAttributes(
		attribute.Int("call.participants", len(participants)),
	))
	defer span.End()

	log := o.logger.WithContext(ctx)
	started := o.now()

	handle, err := o.platform.CreateCall(ctx, participants, o.opts.CallbackURL)
	if err != nil {
		return nil, o.fail(ctx, span, "", len(participants), started, fmt.Errorf("call orchestrator: create call: %w", err))
	}
	span.SetAttributes(attribute.String("call.id", string(handle)))
	log.Info("call created", zap.String("call_id", string(handle)), zap.Int("participants", len(participants)))

	last, err := o.awaitConnected(ctx, handle)
	if err != nil {
		return nil, o.fail(ctx, span, handle, len(participants), started, fmt.Errorf("call orchestrator: poll state: %w", err))
	}

	if !last.Connected() {
		outcome := &domain.Outcome{Kind: domain.OutcomeTimedOut, CallID: handle, LastState: last.StatePtr()}
		log.Warn("call not connected within timeout",
			zap.String("call_id", string(handle)),
			zap.Stringp("last_state", last.StatePtr()),
			zap.Duration("timeout", o.opts.ConnectTimeout),
		)
		span.SetAttributes(attribute.String("call.outcome", string(outcome.Kind)))
		o.metrics.ObserveOutcome(telemetry.OutcomeTimedOut)
		o.publish(ctx, queue.OutcomeMessage{
			CallID:       string(handle),
			Outcome:      queue.OutcomeTimedOut,
			Status:       outcome.Status(),
			State:        outcome.LastState,
			Participants: len(participants),
			DurationMs:   o.now().Sub(started).Milliseconds(),
		})
		return outcome, nil
	}

	o.metrics.ObserveConnect(o.now().Sub(started))

	op, err := o.platform.StartPrompt(ctx, handle, req.AudioURL)
	if err != nil {
		return nil, o.fail(ctx, span, handle, len(participants), started, fmt.Errorf("call orchestrator: start prompt: %w", err))
	}
	log.Info("audio prompt requested", zap.String("call_id", string(handle)), zap.String("operation_id", string(op)))

	outcome := &domain.Outcome{Kind: domain.OutcomePromptRequested, CallID: handle, Operation: op}
	span.SetAttributes(attribute.String("call.outcome", string(outcome.Kind)))
	o.metrics.ObserveOutcome(telemetry.OutcomePromptRequested)
	o.publish(ctx, queue.OutcomeMessage{
		CallID:            string(handle),
		Outcome:           queue.OutcomeConnected,
		Status:            outcome.Status(),
		State:             last.StatePtr(),
		PromptOperationID: string(op),
		Participants:      len(participants),
		DurationMs:        o.now().Sub(started).Milliseconds(),
	})
	return outcome, nil
}

// awaitConnected polls until the call connects or the connect timeout passes.
// The returned observation is the most recent one, including unknown polls.
func (o *Orchestrator) awaitConnected(ctx context.Context, handle domain.CallHandle) (domain.StateObservation, error) {
	log := o.logger.WithContext(ctx)
	start := o.now()
	last := domain.Unknown()

	timer := time.NewTimer(o.opts.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-timer.C:
		}

		obs, err := o.platform.CallState(ctx, handle)
		if err != nil {
			return last, err
		}
		last = obs
		o.metrics.ObservePoll(obs.Kind.String())
		log.Debug("call state observed",
			zap.String("call_id", string(handle)),
			zap.Stringer("observation", obs.Kind),
			zap.String("state", obs.State),
		)

		if obs.Connected() {
			return last, nil
		}
		if o.now().Sub(start) >= o.opts.ConnectTimeout {
			return last, nil
		}
		timer.Reset(o.opts.PollInterval)
	}
}

func (o *Orchestrator) fail(ctx context.Context, span trace.Span, handle domain.CallHandle, participants int, started time.Time, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if cancelled(ctx, err) {
		o.metrics.ObserveOutcome(telemetry.OutcomeCancelled)
		o.logger.WithContext(ctx).Info("call orchestration cancelled", zap.String("call_id", string(handle)))
		return err
	}

	o.metrics.ObserveOutcome(telemetry.OutcomeFailed)
	o.publish(ctx, queue.OutcomeMessage{
		CallID:       string(handle),
		Outcome:      queue.OutcomeFailed,
		Error:        err.Error(),
		Participants: participants,
		DurationMs:   o.now().Sub(started).Milliseconds(),
	})
	return err
}

func (o *Orchestrator) publish(ctx context.Context, msg queue.OutcomeMessage) {
	if o.publisher == nil {
		return
	}
	msg.OccurredAt = o.now().UTC()

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := o.publisher.PublishOutcome(pctx, msg); err != nil {
		o.logger.WithContext(ctx).Warn("call orchestrator: publish outcome",
			zap.String("call_id", msg.CallID),
			zap.Error(err),
		)
	}
}

func cancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}
