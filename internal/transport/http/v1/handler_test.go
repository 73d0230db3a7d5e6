package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnmikel306/learntrack-sub002/internal/adapter/llm"
	"github.com/johnmikel306/learntrack-sub002/internal/config"
	"github.com/johnmikel306/learntrack-sub002/internal/domain"
	"github.com/johnmikel306/learntrack-sub002/internal/policy"
	"github.com/johnmikel306/learntrack-sub002/internal/repository"
	"github.com/johnmikel306/learntrack-sub002/internal/service"
	"github.com/johnmikel306/learntrack-sub002/internal/stream"
)

func newTestEcho(t *testing.T) *echo.Echo {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)

	svc := service.New(st, llm.NewMockGenerator(0), engine, &config.Config{MaxQuestionsPerCall: 10}, nil)
	e := echo.New()
	NewHandler(svc, nil).RegisterRoutes(e)
	return e
}

func serve(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// generate runs a generation and returns the decoded events.
func generate(t *testing.T, e *echo.Echo, body string) []domain.GenerationEvent {
	t.Helper()
	rec := serve(e, http.MethodPost, BasePath+"/generate", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get(echo.HeaderContentType))

	var events []domain.GenerationEvent
	for ev, err := range stream.NewDecoder(nil, nil).Events(rec.Body) {
		require.NoError(t, err)
		events = append(events, ev)
	}
	return events
}

func TestHealth(t *testing.T) {
	e := newTestEcho(t)
	rec := serve(e, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestGenerateStreamsRecords(t *testing.T) {
	e := newTestEcho(t)
	events := generate(t, e, `{"prompt":"photosynthesis","question_count":2,"question_types":["multiple-choice","true-false"]}`)

	require.NotEmpty(t, events)
	assert.Equal(t, domain.EventSessionStarted, events[0].Type)
	assert.Equal(t, domain.EventStreamDone, events[len(events)-1].Type)

	var completed []*domain.Question
	for _, ev := range events {
		if ev.Type == domain.EventQuestionCompleted {
			completed = append(completed, ev.Question)
		}
	}
	require.Len(t, completed, 2)
	assert.Equal(t, domain.QuestionTypeMultipleChoice, completed[0].Type)
	assert.Equal(t, domain.QuestionTypeTrueFalse, completed[1].Type)
	assert.Equal(t, events[0].SessionID, completed[0].SessionID)
}

func TestGenerateRefusals(t *testing.T) {
	e := newTestEcho(t)

	tests := []struct {
		name string
		body string
		code int
		tag  string
	}{
		{name: "malformed body", body: `{"prompt":`, code: http.StatusBadRequest, tag: "bad_request"},
		{name: "empty prompt", body: `{"prompt":"","question_count":2}`, code: http.StatusBadRequest, tag: "validation_error"},
		{name: "over the limit", body: `{"prompt":"x","question_count":11}`, code: http.StatusBadRequest, tag: "validation_error"},
		{name: "unknown provider", body: `{"prompt":"x","question_count":2,"provider":"acme"}`, code: http.StatusUnprocessableEntity, tag: "policy_denied"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(e, http.MethodPost, BasePath+"/generate", tt.body)
			assert.Equal(t, tt.code, rec.Code)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.tag, resp.Code)
		})
	}
}

func TestSessionReviewRoutes(t *testing.T) {
	e := newTestEcho(t)
	events := generate(t, e, `{"prompt":"cells","question_count":2}`)
	sid := events[0].SessionID

	rec := serve(e, http.MethodGet, BasePath+"/sessions-with-questions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Sessions []domain.Session `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Sessions, 1)
	require.Len(t, list.Sessions[0].Questions, 2)
	q1 := list.Sessions[0].Questions[0].QuestionID
	q2 := list.Sessions[0].Questions[1].QuestionID

	rec = serve(e, http.MethodPost, BasePath+"/sessions/"+sid+"/questions/"+q1+"/approve", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(e, http.MethodPost, BasePath+"/sessions/"+sid+"/questions/"+q1+"/reject", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(e, http.MethodPut, BasePath+"/sessions/"+sid+"/questions/"+q2, `{"question_text":"Edited?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var edited domain.Question
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &edited))
	assert.Equal(t, "Edited?", edited.Text)
	assert.Equal(t, domain.QuestionStatusPending, edited.Status)

	rec = serve(e, http.MethodGet, BasePath+"/sessions/"+sid, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var session domain.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	assert.Equal(t, 1, session.ApprovedCount)

	rec = serve(e, http.MethodPost, BasePath+"/sessions/"+sid+"/questions/nope/approve", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(e, http.MethodDelete, BasePath+"/sessions/"+sid, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(e, http.MethodGet, BasePath+"/sessions/"+sid, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMaterialRoutes(t *testing.T) {
	e := newTestEcho(t)

	rec := serve(e, http.MethodPost, BasePath+"/materials", `{"title":"Cells","content":"Cells are the unit of life."}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var m domain.Material
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	require.NotEmpty(t, m.MaterialID)

	rec = serve(e, http.MethodGet, BasePath+"/materials/"+m.MaterialID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(e, http.MethodGet, BasePath+"/materials/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(e, http.MethodPost, BasePath+"/materials", `{"title":"no content"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	events := generate(t, e, `{"prompt":"cells","question_count":1,"material_ids":["`+m.MaterialID+`"]}`)
	var found []domain.Source
	for _, ev := range events {
		if ev.Type == domain.EventSourceFound {
			found = append(found, *ev.Source)
		}
	}
	require.Len(t, found, 1)
	assert.Equal(t, "Cells", found[0].Title)
}
