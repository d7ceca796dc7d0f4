// Package api exposes the dispatcher over HTTP.
package api

import (
	"github.com/driftlock/dispatch-proxy/internal/models"
	"github.com/driftlock/dispatch-proxy/internal/services/dispatch"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

// DispatchRequest is the completion request body: the prompt plus optional
// per-call dispatch overrides.
type DispatchRequest struct {
	Prompt  string                `json:"prompt"`
	Options models.RequestOptions `json:"options"`
}

// DispatchHandler handles completion dispatch requests end-to-end.
type DispatchHandler struct {
	dispatcher *dispatch.Dispatcher
}

// NewDispatchHandler creates the completion dispatch handler.
func NewDispatchHandler(dispatcher *dispatch.Dispatcher) *DispatchHandler {
	return &DispatchHandler{dispatcher: dispatcher}
}

// Dispatch handles POST /v1/dispatch.
func (h *DispatchHandler) Dispatch(c *fiber.Ctx) error {
	var req DispatchRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, models.NewValidationError("invalid request body", err))
	}

	resp, err := h.dispatcher.ProcessRequest(c.UserContext(), req.Prompt, req.Options)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(resp)
}

// writeError maps any dispatch error to its HTTP status with a sanitized
// body. Internal causes never reach the client.
func writeError(c *fiber.Ctx, err error) error {
	sanitized := models.SanitizeError(err)
	if sanitized.Type == models.ErrorTypeInternal {
		fiberlog.Errorf("Unexpected dispatch error: %v", err)
	}
	return c.Status(sanitized.GetStatusCode()).JSON(fiber.Map{"error": sanitized})
}
