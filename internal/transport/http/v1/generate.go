package v1

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/johnmikel306/learntrack-sub002/internal/domain"
)

// Generate streams a generation session as "data: <json>" records.
// Refusals are reported as plain JSON errors before the stream starts.
func (h *Handler) Generate(c echo.Context) error {
	var req domain.GenerateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "bad_request"})
	}

	ctx := c.Request().Context()
	if err := h.service.CheckGenerate(ctx, &req); err != nil {
		return h.writeError(c, err)
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	emit := func(ev domain.GenerationEvent) error {
		data, err := json.Marshal(domain.NewEventRecord(ev))
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(res, "data: %s\n\n", data); err != nil {
			return err
		}
		res.Flush()
		return nil
	}

	// The status line is already sent; failures are reported in the stream.
	if err := h.service.Generate(ctx, req, emit); err != nil && ctx.Err() == nil {
		h.log.Warn("generation stream ended with error", "error", err)
	}
	return nil
}
