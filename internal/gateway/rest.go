package gateway

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/johnmikel306/learntrack-sub002/internal/domain"
	"github.com/johnmikel306/learntrack-sub002/internal/gateway/protocol"
	"github.com/johnmikel306/learntrack-sub002/internal/orchestrator"
)

func (s *Server) registerREST(g *echo.Group) {
	g.GET("", s.getView)
	g.POST("/generate", s.postGenerate)
	g.POST("/stop", s.postStop)
	g.GET("/sessions", s.listSessions)
	g.POST("/sessions/:session_id/select", s.selectSession)
	g.DELETE("/sessions/:session_id", s.deleteSession)
	g.POST("/questions/:question_id/approve", s.approveQuestion)
	g.POST("/questions/:question_id/reject", s.rejectQuestion)
	g.PUT("/questions/:question_id", s.editQuestion)
	g.POST("/approve-all", s.approveAll)
}

type restError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// restStatus maps engine error codes onto HTTP status codes.
var restStatus = map[string]int{
	protocol.ErrorCodeValidation:      http.StatusBadRequest,
	protocol.ErrorCodeNotFound:        http.StatusNotFound,
	protocol.ErrorCodeRouting:         http.StatusUnprocessableEntity,
	protocol.ErrorCodeBackendRejected: http.StatusBadGateway,
	protocol.ErrorCodeTransport:       http.StatusBadGateway,
}

func (s *Server) writeError(c echo.Context, err error) error {
	code := protocol.ErrorCode(err)
	status, ok := restStatus[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	return c.JSON(status, restError{Error: err.Error(), Code: code})
}

func (s *Server) workspace(c echo.Context) *orchestrator.Orchestrator {
	return s.workspaces.Get(c.Param("workspace_id"))
}

func (s *Server) writeView(c echo.Context, status int, orch *orchestrator.Orchestrator) error {
	return c.JSON(status, protocol.NewView(orch.Snapshot()))
}

func (s *Server) getView(c echo.Context) error {
	return s.writeView(c, http.StatusOK, s.workspace(c))
}

// postGenerate starts a generation and returns as soon as the stream is
// open; progress is visible through the view and the websocket.
func (s *Server) postGenerate(c echo.Context) error {
	var req domain.GenerateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, restError{Error: "invalid request body", Code: protocol.ErrorCodeInvalidMessage})
	}
	orch := s.workspace(c)
	if err := orch.Generate(c.Request().Context(), req); err != nil {
		return s.writeError(c, err)
	}
	return s.writeView(c, http.StatusAccepted, orch)
}

func (s *Server) postStop(c echo.Context) error {
	orch := s.workspace(c)
	orch.Stop()
	return s.writeView(c, http.StatusOK, orch)
}

func (s *Server) listSessions(c echo.Context) error {
	sessions, err := s.workspace(c).Sessions(c.Request().Context())
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) selectSession(c echo.Context) error {
	orch := s.workspace(c)
	if err := orch.SelectHistorical(c.Request().Context(), c.Param("session_id")); err != nil {
		return s.writeError(c, err)
	}
	return s.writeView(c, http.StatusOK, orch)
}

func (s *Server) deleteSession(c echo.Context) error {
	if err := s.workspace(c).DeleteSession(c.Request().Context(), c.Param("session_id")); err != nil {
		return s.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) approveQuestion(c echo.Context) error {
	orch := s.workspace(c)
	if err := orch.Approve(c.Request().Context(), c.Param("question_id")); err != nil {
		return s.writeError(c, err)
	}
	return s.writeView(c, http.StatusOK, orch)
}

func (s *Server) rejectQuestion(c echo.Context) error {
	orch := s.workspace(c)
	if err := orch.Reject(c.Request().Context(), c.Param("question_id")); err != nil {
		return s.writeError(c, err)
	}
	return s.writeView(c, http.StatusOK, orch)
}

func (s *Server) editQuestion(c echo.Context) error {
	var patch domain.QuestionPatch
	if err := c.Bind(&patch); err != nil {
		return c.JSON(http.StatusBadRequest, restError{Error: "invalid request body", Code: protocol.ErrorCodeInvalidMessage})
	}
	orch := s.workspace(c)
	if err := orch.Edit(c.Request().Context(), c.Param("question_id"), patch); err != nil {
		return s.writeError(c, err)
	}
	return s.writeView(c, http.StatusOK, orch)
}

func (s *Server) approveAll(c echo.Context) error {
	results := protocol.NewItemResults(s.workspace(c).ApproveAll(c.Request().Context()))
	return c.JSON(http.StatusOK, map[string]any{"results": results})
}
