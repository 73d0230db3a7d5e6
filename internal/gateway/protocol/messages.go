// Package protocol defines the WebSocket message protocol between UI clients and the gateway.
package protocol

import (
	"github.com/johnmikel306/learntrack-sub002/internal/domain"
	"github.com/johnmikel306/learntrack-sub002/internal/orchestrator"
	"github.com/johnmikel306/learntrack-sub002/internal/review"
)

// Message types from client to gateway
const (
	TypeHello         = "hello"
	TypeGenerate      = "generate"
	TypeStop          = "stop"
	TypeApprove       = "approve"
	TypeReject        = "reject"
	TypeEdit          = "edit"
	TypeApproveAll    = "approve_all"
	TypeSelectSession = "select_session"
	TypeDeleteSession = "delete_session"
	TypeListSessions  = "list_sessions"
)

// Message types from gateway to client
const (
	TypeHelloAck = "hello_ack"
	TypeSnapshot = "snapshot"
	TypeSessions = "sessions"
	TypeResult   = "result"
	TypeError    = "error"
)

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type        string `json:"type"`
	Ts          int64  `json:"ts"`
	RequestID   string `json:"request_id,omitempty"`
	WorkspaceID string `json:"workspace_id,omitempty"`
}

// HelloMessage is sent by the client to bind the connection to a workspace.
type HelloMessage struct {
	BaseMessage
	APIKey     string            `json:"api_key,omitempty"`
	ClientMeta map[string]string `json:"client_meta,omitempty"`
}

// CommandMessage carries every client command after hello. Only the fields
// relevant to Type are read.
type CommandMessage struct {
	BaseMessage
	Request    *domain.GenerateRequest `json:"request,omitempty"`
	QuestionID string                  `json:"question_id,omitempty"`
	SessionID  string                  `json:"session_id,omitempty"`
	Patch      *domain.QuestionPatch   `json:"patch,omitempty"`
}

// View is the wire form of an orchestrator snapshot.
type View struct {
	orchestrator.View
	LastError string `json:"last_error,omitempty"`
}

// NewView converts a snapshot for the wire.
func NewView(v orchestrator.View) View {
	out := View{View: v}
	if v.LastError != nil {
		out.LastError = v.LastError.Error()
	}
	return out
}

// HelloAckMessage is sent after a successful hello, with the current view.
type HelloAckMessage struct {
	BaseMessage
	View View `json:"view"`
}

// SnapshotMessage is pushed to every connection of a workspace on each change.
type SnapshotMessage struct {
	BaseMessage
	View View `json:"view"`
}

// SessionsMessage answers list_sessions.
type SessionsMessage struct {
	BaseMessage
	Sessions []domain.Session `json:"sessions"`
}

// ItemResult is the outcome of one question in an approve_all.
type ItemResult struct {
	QuestionID string `json:"question_id"`
	OK         bool   `json:"ok"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
}

// NewItemResults converts approve-all results for the wire.
func NewItemResults(results []review.ItemResult) []ItemResult {
	out := make([]ItemResult, len(results))
	for i, r := range results {
		out[i] = ItemResult{QuestionID: r.QuestionID, OK: r.Err == nil}
		if r.Err != nil {
			out[i].Code = ErrorCode(r.Err)
			out[i].Message = r.Err.Error()
		}
	}
	return out
}

// ResultMessage acknowledges a command.
type ResultMessage struct {
	BaseMessage
	Command string       `json:"command"`
	OK      bool         `json:"ok"`
	Results []ItemResult `json:"results,omitempty"`
}

// ErrorMessage is sent when a message or command fails.
type ErrorMessage struct {
	BaseMessage
	Command string `json:"command,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
