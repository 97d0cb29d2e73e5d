package telephony

import (
	"context"

	"github.com/acme/group-call-bot/internal/domain"
)

// Platform abstracts the calling platform integration.
//
// CallState reports poll failures as an unknown observation rather than an
// error. It returns an error only for credential failures and cancellation,
// both of which end the run.
type Platform interface {
	CreateCall(ctx context.Context, participants []string, callbackURL string) (domain.CallHandle, error)
	CallState(ctx context.Context, handle domain.CallHandle) (domain.StateObservation, error)
	StartPrompt(ctx context.Context, handle domain.CallHandle, audioURL string) (domain.PromptOperation, error)
}
