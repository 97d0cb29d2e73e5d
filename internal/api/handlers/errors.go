package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/acme/group-call-bot/pkg/errors"
)

// StatusClientClosedRequest reports a request abandoned by its caller.
const StatusClientClosedRequest = 499

// translateError maps service errors onto HTTP errors. Upstream failures win
// over context errors: a per-request timeout inside a platform call is a
// failed call, not an abandoned request.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, apperrors.ErrCreation),
		errors.Is(err, apperrors.ErrPrompt),
		errors.Is(err, apperrors.ErrCredential):
		return fiber.NewError(http.StatusBadGateway, err.Error())
	case errors.Is(err, context.Canceled):
		return fiber.NewError(StatusClientClosedRequest, "request cancelled")
	default:
		return err
	}
}
