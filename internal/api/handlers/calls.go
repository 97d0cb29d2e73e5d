package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/acme/group-call-bot/internal/domain"
	callsvc "github.com/acme/group-call-bot/internal/service/call"
)

type startCallRequest struct {
	Users        []string `json:"users"`
	AudioFileURL string   `json:"audioFileUrl"`
}

type promptRequestedResponse struct {
	CallID                string `json:"callId"`
	PlayPromptOperationID string `json:"playPromptOperationId"`
	Status                string `json:"status"`
}

type timedOutResponse struct {
	CallID string  `json:"callId"`
	Status string  `json:"status"`
	State  *string `json:"state"`
}

func (h *HandlerSet) startCall(ctx *fiber.Ctx) error {
	var req startCallRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	outcome, err := h.deps.Calls.StartCall(ctx.UserContext(), callsvc.StartCallInput{
		Users:        req.Users,
		AudioFileURL: req.AudioFileURL,
	})
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(toStartCallResponse(outcome))
}

func toStartCallResponse(outcome *domain.Outcome) any {
	if outcome.Kind == domain.OutcomeTimedOut {
		return timedOutResponse{
			CallID: string(outcome.CallID),
			Status: outcome.Status(),
			State:  outcome.LastState,
		}
	}
	return promptRequestedResponse{
		CallID:                string(outcome.CallID),
		PlayPromptOperationID: string(outcome.Operation),
		Status:                outcome.Status(),
	}
}
