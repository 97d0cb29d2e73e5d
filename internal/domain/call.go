package domain

import (
	"fmt"
	"strings"

	apperrors "github.com/acme/group-call-bot/pkg/errors"
)

// MinParticipants is the smallest group a call can be placed to.
const MinParticipants = 2

// CallHandle is the platform-assigned identifier of a created call.
type CallHandle string

// PromptOperation identifies an accepted media prompt. It may be empty.
type PromptOperation string

// StateConnected is the only platform call state the service acts on.
const StateConnected = "connected"

// CallRequest describes a group call to place and the audio to play into it.
type CallRequest struct {
	Participants []string
	AudioURL     string
}

// Validate enforces the participant and audio invariants. Blank identifiers
// are rejected and duplicates count once.
func (r CallRequest) Validate() error {
	seen := make(map[string]struct{}, len(r.Participants))
	for _, p := range r.Participants {
		id := strings.TrimSpace(p)
		if id == "" {
			return fmt.Errorf("%w: participant identifiers in 'users' must not be empty", apperrors.ErrValidation)
		}
		seen[id] = struct{}{}
	}
	if len(seen) < MinParticipants {
		return fmt.Errorf("%w: provide at least %d distinct participant IDs in 'users'", apperrors.ErrValidation, MinParticipants)
	}
	if strings.TrimSpace(r.AudioURL) == "" {
		return fmt.Errorf("%w: audioFileUrl is required", apperrors.ErrValidation)
	}
	return nil
}

// DistinctParticipants returns the trimmed participant identifiers in request
// order with duplicates and blanks removed.
func (r CallRequest) DistinctParticipants() []string {
	seen := make(map[string]struct{}, len(r.Participants))
	out := make([]string, 0, len(r.Participants))
	for _, p := range r.Participants {
		id := strings.TrimSpace(p)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// ObservationKind classifies a single state poll.
type ObservationKind int

const (
	// ObservationUnknown covers failed state fetches and missing state fields.
	ObservationUnknown ObservationKind = iota
	ObservationOther
	ObservationConnected
)

func (k ObservationKind) String() string {
	switch k {
	case ObservationConnected:
		return "connected"
	case ObservationOther:
		return "other"
	default:
		return "unknown"
	}
}

// StateObservation is the result of one call-state poll.
type StateObservation struct {
	Kind  ObservationKind
	State string
}

// Unknown is the observation for a poll that yielded no state.
func Unknown() StateObservation {
	return StateObservation{Kind: ObservationUnknown}
}

// Observe classifies a platform-reported state. A nil state is unknown.
func Observe(state *string) StateObservation {
	if state == nil {
		return Unknown()
	}
	if strings.EqualFold(*state, StateConnected) {
		return StateObservation{Kind: ObservationConnected, State: *state}
	}
	return StateObservation{Kind: ObservationOther, State: *state}
}

// Connected reports whether the call reached the connected state.
func (o StateObservation) Connected() bool {
	return o.Kind == ObservationConnected
}

// StatePtr returns the observed state, or nil when unknown.
func (o StateObservation) StatePtr() *string {
	if o.Kind == ObservationUnknown {
		return nil
	}
	s := o.State
	return &s
}

// OutcomeKind enumerates terminal orchestration results.
type OutcomeKind string

const (
	OutcomePromptRequested OutcomeKind = "prompt_requested"
	OutcomeTimedOut        OutcomeKind = "timed_out"
)

// Status texts reported to callers.
const (
	StatusPromptRequested = "Audio prompt requested"
	StatusTimedOut        = "Call not connected within timeout"
)

// Outcome is the caller-facing result of one orchestration run.
type Outcome struct {
	Kind      OutcomeKind
	CallID    CallHandle
	Operation PromptOperation
	// LastState is the last observed state on timeout; nil when never known.
	LastState *string
}

// Status returns the human-readable status text for the outcome.
func (o Outcome) Status() string {
	if o.Kind == OutcomeTimedOut {
		return StatusTimedOut
	}
	return StatusPromptRequested
}
