package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/johnmikel306/learntrack-sub002/internal/domain"
	"github.com/johnmikel306/learntrack-sub002/internal/gateway/hub"
	"github.com/johnmikel306/learntrack-sub002/internal/gateway/protocol"
	"github.com/johnmikel306/learntrack-sub002/internal/orchestrator"
)

// HandleWebSocket handles WebSocket upgrade and connection lifecycle.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Warn("failed to upgrade websocket", "error", err)
		return err
	}

	conn := s.hub.NewConnection(ws)
	s.hub.Register(conn)

	ws.SetReadLimit(s.opts.MaxMessageSize)

	go s.writePump(conn)
	go s.readPump(conn)

	return nil
}

// readPump reads messages from the WebSocket connection.
func (s *Server) readPump(conn *hub.Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Warn("websocket read failed", "conn_id", conn.ID, "error", err)
			}
			return
		}
		s.handleMessage(conn, message)
	}
}

// writePump writes queued messages and keeps the connection alive with pings.
func (s *Server) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.log.Warn("websocket write failed", "conn_id", conn.ID, "error", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches incoming messages.
func (s *Server) handleMessage(conn *hub.Connection, data []byte) {
	var base protocol.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		s.sendError(conn, protocol.BaseMessage{}, "", protocol.ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}

	switch base.Type {
	case protocol.TypeHello:
		s.handleHello(conn, data)
	case protocol.TypeGenerate, protocol.TypeStop, protocol.TypeApprove, protocol.TypeReject,
		protocol.TypeEdit, protocol.TypeApproveAll, protocol.TypeSelectSession,
		protocol.TypeDeleteSession, protocol.TypeListSessions:
		s.handleCommand(conn, data)
	default:
		s.sendError(conn, base, "", protocol.ErrorCodeInvalidMessage, "unknown message type: "+base.Type)
	}
}

// handleHello binds the connection to a workspace and replies with its view.
func (s *Server) handleHello(conn *hub.Connection, data []byte) {
	var msg protocol.HelloMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, protocol.BaseMessage{}, "", protocol.ErrorCodeInvalidMessage, "invalid hello message")
		return
	}

	if s.opts.APIKey != "" && subtle.ConstantTimeCompare([]byte(msg.APIKey), []byte(s.opts.APIKey)) != 1 {
		s.sendError(conn, msg.BaseMessage, "", protocol.ErrorCodeUnauthorized, "invalid api_key")
		return
	}

	workspaceID := msg.WorkspaceID
	if workspaceID == "" {
		workspaceID = "ws_" + uuid.New().String()[:8]
	}
	s.hub.BindWorkspace(conn, workspaceID)
	orch := s.workspaces.Get(workspaceID)

	ack := protocol.HelloAckMessage{
		BaseMessage: protocol.BaseMessage{
			Type:        protocol.TypeHelloAck,
			Ts:          time.Now().UnixMilli(),
			RequestID:   msg.RequestID,
			WorkspaceID: workspaceID,
		},
		View: protocol.NewView(orch.Snapshot()),
	}
	s.hub.SendJSONToConnection(conn, ack)

	s.log.Info("hello handshake completed", "conn_id", conn.ID, "workspace_id", workspaceID)
}

// handleCommand runs a workspace command without blocking the read pump.
func (s *Server) handleCommand(conn *hub.Connection, data []byte) {
	var msg protocol.CommandMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, protocol.BaseMessage{}, "", protocol.ErrorCodeInvalidMessage, "invalid command message")
		return
	}

	if conn.WorkspaceID == "" {
		s.sendError(conn, msg.BaseMessage, msg.Type, protocol.ErrorCodeWorkspaceRequired, "must send hello first")
		return
	}
	msg.WorkspaceID = conn.WorkspaceID

	orch := s.workspaces.Get(msg.WorkspaceID)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.CommandTimeout)
		defer cancel()

		reply, err := s.runCommand(ctx, orch, &msg)
		if err != nil {
			s.log.Warn("command failed", "workspace_id", msg.WorkspaceID, "command", msg.Type, "error", err)
			s.sendError(conn, msg.BaseMessage, msg.Type, protocol.ErrorCode(err), err.Error())
			return
		}
		s.hub.SendJSONToConnection(conn, reply)
	}()
}

// runCommand executes one command against a workspace orchestrator and
// returns the reply for the caller.
func (s *Server) runCommand(ctx context.Context, orch *orchestrator.Orchestrator, msg *protocol.CommandMessage) (any, error) {
	base := protocol.BaseMessage{
		Type:        protocol.TypeResult,
		Ts:          time.Now().UnixMilli(),
		RequestID:   msg.RequestID,
		WorkspaceID: msg.WorkspaceID,
	}
	result := protocol.ResultMessage{BaseMessage: base, Command: msg.Type, OK: true}

	switch msg.Type {
	case protocol.TypeGenerate:
		if msg.Request == nil {
			return nil, domain.NewValidationError("request is required")
		}
		if err := orch.Generate(ctx, *msg.Request); err != nil {
			return nil, err
		}
	case protocol.TypeStop:
		orch.Stop()
	case protocol.TypeApprove:
		if err := orch.Approve(ctx, msg.QuestionID); err != nil {
			return nil, err
		}
	case protocol.TypeReject:
		if err := orch.Reject(ctx, msg.QuestionID); err != nil {
			return nil, err
		}
	case protocol.TypeEdit:
		if msg.Patch == nil {
			return nil, domain.NewValidationError("patch is required")
		}
		if err := orch.Edit(ctx, msg.QuestionID, *msg.Patch); err != nil {
			return nil, err
		}
	case protocol.TypeApproveAll:
		results := orch.ApproveAll(ctx)
		result.Results = protocol.NewItemResults(results)
		for _, r := range result.Results {
			if !r.OK {
				result.OK = false
			}
		}
	case protocol.TypeSelectSession:
		if err := orch.SelectHistorical(ctx, msg.SessionID); err != nil {
			return nil, err
		}
	case protocol.TypeDeleteSession:
		if err := orch.DeleteSession(ctx, msg.SessionID); err != nil {
			return nil, err
		}
	case protocol.TypeListSessions:
		sessions, err := orch.Sessions(ctx)
		if err != nil {
			return nil, err
		}
		base.Type = protocol.TypeSessions
		return protocol.SessionsMessage{BaseMessage: base, Sessions: sessions}, nil
	}
	return result, nil
}

// sendError sends an error message to a connection, echoing the request
// and workspace ids of the message that caused it.
func (s *Server) sendError(conn *hub.Connection, cause protocol.BaseMessage, command, code, message string) {
	s.hub.SendJSONToConnection(conn, protocol.ErrorMessage{
		BaseMessage: protocol.BaseMessage{
			Type:        protocol.TypeError,
			Ts:          time.Now().UnixMilli(),
			RequestID:   cause.RequestID,
			WorkspaceID: cause.WorkspaceID,
		},
		Command: command,
		Code:    code,
		Message: message,
	})
}
