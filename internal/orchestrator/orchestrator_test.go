package orchestrator

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnmikel306/learntrack-sub002/internal/domain"
)

type fakeBackend struct {
	mu        sync.Mutex
	streams   []func(ctx context.Context) (io.ReadCloser, error)
	opened    int
	sessions  []domain.Session
	mutations []string
	fail      map[string]error
}

func (f *fakeBackend) GenerateStream(ctx context.Context, _ *domain.GenerateRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	if f.opened >= len(f.streams) {
		f.mu.Unlock()
		return nil, errors.New("no stream scripted")
	}
	open := f.streams[f.opened]
	f.opened++
	f.mu.Unlock()
	return open(ctx)
}

func (f *fakeBackend) ListSessions(context.Context) ([]domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Session, len(f.sessions))
	for i := range f.sessions {
		out[i] = f.sessions[i].Clone()
	}
	return out, nil
}

func (f *fakeBackend) DeleteSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations = append(f.mutations, "delete "+id)
	return nil
}

func (f *fakeBackend) mutate(op, sessionID, questionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations = append(f.mutations, op+" "+sessionID+"/"+questionID)
	return f.fail[questionID]
}

func (f *fakeBackend) ApproveQuestion(_ context.Context, sessionID, questionID string) error {
	return f.mutate("approve", sessionID, questionID)
}

func (f *fakeBackend) RejectQuestion(_ context.Context, sessionID, questionID string) error {
	return f.mutate("reject", sessionID, questionID)
}

func (f *fakeBackend) UpdateQuestion(_ context.Context, sessionID, questionID string, _ domain.QuestionPatch) (*domain.Question, error) {
	return nil, f.mutate("edit", sessionID, questionID)
}

func (f *fakeBackend) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.mutations...)
}

func staticStream(body string) func(context.Context) (io.ReadCloser, error) {
	return func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(body)), nil
	}
}

// pipeStream returns a stream the test writes to. The reader is closed when
// the stream context ends, as an HTTP response body would be.
func pipeStream(w **io.PipeWriter) func(context.Context) (io.ReadCloser, error) {
	return func(ctx context.Context) (io.ReadCloser, error) {
		pr, pw := io.Pipe()
		*w = pw
		go func() {
			<-ctx.Done()
			_ = pr.CloseWithError(ctx.Err())
		}()
		return pr, nil
	}
}

func record(json string) string { return "data: " + json + "\n" }

func questionRecord(id string) string {
	return record(fmt.Sprintf(`{"type":"question_completed","question_data":{"id":%q,"text":"What is %s?","type":"MCQ","options":["a","b"],"correct_answer":"a"}}`, id, id))
}

const (
	sessionRecord = `data: {"type":"session_started","session_id":"s1"}` + "\n"
	doneRecord    = `data: {"type":"stream_done"}` + "\n"
)

func newOrchestrator(fb *fakeBackend) *Orchestrator {
	return New(Deps{Backend: fb, MaxQuestions: 50, ApproveAllWorkers: 2})
}

func generate(t *testing.T, o *Orchestrator, count int) {
	t.Helper()
	require.NoError(t, o.Generate(context.Background(), domain.GenerateRequest{Prompt: "cells", QuestionCount: count}))
}

func TestGenerateSingleQuestionScenario(t *testing.T) {
	fb := &fakeBackend{}
	fb.streams = append(fb.streams, staticStream(
		sessionRecord+
			record(`{"type":"thinking_step","step":"analyzing material"}`)+
			questionRecord("q1")+
			doneRecord,
	))
	o := newOrchestrator(fb)

	generate(t, o, 1)
	o.Wait()

	v := o.Snapshot()
	assert.Equal(t, ModeLive, v.Mode)
	assert.False(t, v.IsGenerating)
	assert.NoError(t, v.LastError)
	require.NotNil(t, v.Draft)
	require.Len(t, v.Draft.Questions, 1)
	q := v.Draft.Questions[0]
	assert.Equal(t, "q1", q.QuestionID)
	assert.Equal(t, domain.QuestionStatusPending, q.Status)
	assert.Equal(t, "s1", q.SessionID)
	assert.Equal(t, []string{"analyzing material"}, v.Draft.ThinkingSteps)
}

func TestStopKeepsCompletedQuestions(t *testing.T) {
	var w *io.PipeWriter
	fb := &fakeBackend{}
	fb.streams = append(fb.streams, pipeStream(&w))
	o := newOrchestrator(fb)

	generate(t, o, 5)
	go func() {
		_, _ = io.WriteString(w, sessionRecord+questionRecord("q1")+questionRecord("q2"))
	}()
	require.Eventually(t, func() bool {
		v := o.Snapshot()
		return len(v.Draft.Questions) == 2
	}, 2*time.Second, 5*time.Millisecond)

	o.Stop()
	o.Wait()
	o.Stop()

	v := o.Snapshot()
	assert.False(t, v.IsGenerating)
	assert.NoError(t, v.LastError)
	assert.Len(t, v.Draft.Questions, 2)
	assert.True(t, v.Draft.Done)
	assert.True(t, v.Draft.Partial)
	assert.False(t, v.Draft.Failed)
	assert.Equal(t, 2, v.Draft.Progress.Current)
	assert.Equal(t, 5, v.Draft.Progress.Total)
}

func TestGenerateRejectsInvalidRequest(t *testing.T) {
	fb := &fakeBackend{}
	o := newOrchestrator(fb)

	err := o.Generate(context.Background(), domain.GenerateRequest{QuestionCount: 3})
	assert.True(t, domain.IsValidation(err))

	err = o.Generate(context.Background(), domain.GenerateRequest{Prompt: "x", QuestionCount: 0})
	assert.True(t, domain.IsValidation(err))

	assert.Zero(t, fb.opened)
	assert.False(t, o.Snapshot().IsGenerating)
}

func TestOpenFailureIsTransportError(t *testing.T) {
	fb := &fakeBackend{}
	fb.streams = append(fb.streams, func(context.Context) (io.ReadCloser, error) {
		return nil, errors.New("connection refused")
	})
	o := newOrchestrator(fb)

	err := o.Generate(context.Background(), domain.GenerateRequest{Prompt: "x", QuestionCount: 1})
	assert.True(t, domain.IsTransport(err))
	o.Wait()

	v := o.Snapshot()
	assert.False(t, v.IsGenerating)
	assert.True(t, domain.IsTransport(v.LastError))
}

func TestStreamEndingEarlyKeepsPartialDraft(t *testing.T) {
	fb := &fakeBackend{}
	fb.streams = append(fb.streams, staticStream(sessionRecord+questionRecord("q1")))
	o := newOrchestrator(fb)

	generate(t, o, 3)
	o.Wait()

	v := o.Snapshot()
	assert.False(t, v.IsGenerating)
	assert.True(t, domain.IsTransport(v.LastError))
	assert.Len(t, v.Draft.Questions, 1)
}

func TestBackendErrorEvent(t *testing.T) {
	fb := &fakeBackend{}
	fb.streams = append(fb.streams, staticStream(
		sessionRecord+questionRecord("q1")+record(`{"type":"error","message":"model overloaded"}`),
	))
	o := newOrchestrator(fb)

	generate(t, o, 3)
	o.Wait()

	v := o.Snapshot()
	require.Error(t, v.LastError)
	assert.Equal(t, "model overloaded", v.LastError.Error())
	assert.True(t, v.Draft.Failed)
	assert.Len(t, v.Draft.Questions, 1)
}

func TestNewGenerationDropsStaleEvents(t *testing.T) {
	var first *io.PipeWriter
	fb := &fakeBackend{}
	fb.streams = append(fb.streams,
		pipeStream(&first),
		staticStream(record(`{"type":"session_started","session_id":"s2"}`)+questionRecord("fresh")+doneRecord),
	)
	o := newOrchestrator(fb)

	generate(t, o, 2)
	generate(t, o, 1)
	o.Wait()

	go func() { _, _ = io.WriteString(first, questionRecord("stale")) }()
	time.Sleep(20 * time.Millisecond)

	v := o.Snapshot()
	require.Len(t, v.Draft.Questions, 1)
	assert.Equal(t, "fresh", v.Draft.Questions[0].QuestionID)
	assert.Equal(t, "s2", v.Draft.SessionID)
}

func TestApproveAllOnLiveDraft(t *testing.T) {
	fb := &fakeBackend{fail: map[string]error{
		"q2": &domain.BackendRejection{Op: "approve", Status: 500, Message: "boom"},
	}}
	fb.streams = append(fb.streams, staticStream(
		sessionRecord+questionRecord("q1")+questionRecord("q2")+questionRecord("q3")+doneRecord,
	))
	o := newOrchestrator(fb)

	generate(t, o, 3)
	o.Wait()

	results := o.ApproveAll(context.Background())
	require.Len(t, results, 3)

	var failed []string
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r.QuestionID)
		}
	}
	assert.Equal(t, []string{"q2"}, failed)

	qs := o.Snapshot().Draft.Questions
	assert.Equal(t, domain.QuestionStatusApproved, qs[0].Status)
	assert.Equal(t, domain.QuestionStatusPending, qs[1].Status)
	assert.Equal(t, domain.QuestionStatusApproved, qs[2].Status)
}

func TestQuestionWithoutSessionCannotBeReviewed(t *testing.T) {
	fb := &fakeBackend{}
	fb.streams = append(fb.streams, staticStream(questionRecord("q1")+doneRecord))
	o := newOrchestrator(fb)

	generate(t, o, 1)
	o.Wait()

	err := o.Approve(context.Background(), "q1")
	assert.True(t, domain.IsRouting(err))
	assert.Empty(t, fb.calls())
}

func TestSelectHistoricalAndReview(t *testing.T) {
	fb := &fakeBackend{sessions: []domain.Session{{
		SessionID: "old",
		Status:    domain.SessionStatusCompleted,
		Questions: []*domain.Question{
			{QuestionID: "h1", Text: "A?"},
			{QuestionID: "h2", Text: "B?"},
		},
	}}}
	o := newOrchestrator(fb)

	require.NoError(t, o.SelectHistorical(context.Background(), "old"))
	v := o.Snapshot()
	assert.Equal(t, ModeHistorical, v.Mode)
	for _, q := range v.Session.Questions {
		assert.Equal(t, "old", q.SessionID)
	}

	require.NoError(t, o.Reject(context.Background(), "h2"))
	v = o.Snapshot()
	assert.Equal(t, domain.QuestionStatusRejected, v.Session.Questions[1].Status)
	assert.Equal(t, 1, v.Session.RejectedCount)
	assert.Equal(t, 1, v.Session.PendingCount)
	assert.Equal(t, []string{"reject old/h2"}, fb.calls())

	sessions, err := o.Sessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Nil(t, sessions[0].Questions)

	assert.ErrorIs(t, o.SelectHistorical(context.Background(), "missing"), domain.ErrSessionNotFound)
}

func TestDeleteSelectedSessionClearsView(t *testing.T) {
	fb := &fakeBackend{sessions: []domain.Session{{SessionID: "old", Questions: []*domain.Question{}}}}
	o := newOrchestrator(fb)

	require.NoError(t, o.SelectHistorical(context.Background(), "old"))
	require.NoError(t, o.DeleteSession(context.Background(), "old"))

	v := o.Snapshot()
	assert.Equal(t, ModeIdle, v.Mode)
	assert.Nil(t, v.Session)
}

func TestDeleteLiveSessionStopsGeneration(t *testing.T) {
	var w *io.PipeWriter
	fb := &fakeBackend{}
	fb.streams = append(fb.streams, pipeStream(&w))
	o := newOrchestrator(fb)

	generate(t, o, 3)
	go func() { _, _ = io.WriteString(w, sessionRecord) }()
	require.Eventually(t, func() bool {
		v := o.Snapshot()
		return v.Draft != nil && v.Draft.SessionID == "s1"
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, o.DeleteSession(context.Background(), "s1"))
	o.Wait()

	v := o.Snapshot()
	assert.False(t, v.IsGenerating)
	assert.Nil(t, v.Draft)
	assert.Equal(t, ModeIdle, v.Mode)
}

func TestSubscribersSeeUpdates(t *testing.T) {
	fb := &fakeBackend{}
	fb.streams = append(fb.streams, staticStream(sessionRecord+questionRecord("q1")+doneRecord))
	o := newOrchestrator(fb)

	var calls atomic.Int32
	var mu sync.Mutex
	var last View
	unsubscribe := o.Subscribe(func(v View) {
		calls.Add(1)
		mu.Lock()
		last = v
		mu.Unlock()
	})

	generate(t, o, 1)
	o.Wait()

	assert.GreaterOrEqual(t, calls.Load(), int32(4))
	mu.Lock()
	assert.False(t, last.IsGenerating)
	mu.Unlock()

	unsubscribe()
	before := calls.Load()
	assert.Error(t, o.Generate(context.Background(), domain.GenerateRequest{Prompt: "x", QuestionCount: 1}))
	assert.Equal(t, before, calls.Load())
}

func TestSubscribersReceiveViewsInOrder(t *testing.T) {
	var w *io.PipeWriter
	fb := &fakeBackend{}
	fb.streams = append(fb.streams, pipeStream(&w))
	o := newOrchestrator(fb)

	stalled := make(chan struct{})
	release := make(chan struct{})
	var (
		mu    sync.Mutex
		views []View
		held  bool
	)
	o.Subscribe(func(v View) {
		if !held && v.IsGenerating && v.Draft != nil && len(v.Draft.Questions) == 1 {
			held = true
			close(stalled)
			<-release
		}
		mu.Lock()
		views = append(views, v)
		mu.Unlock()
	})

	generate(t, o, 5)
	go func() {
		_, _ = io.WriteString(w, sessionRecord+questionRecord("q1"))
	}()
	select {
	case <-stalled:
	case <-time.After(2 * time.Second):
		t.Fatal("first question never delivered")
	}

	stopped := make(chan struct{})
	go func() {
		o.Stop()
		close(stopped)
	}()
	require.Eventually(t, func() bool { return !o.Snapshot().IsGenerating }, 2*time.Second, 5*time.Millisecond)

	close(release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return")
	}
	o.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, views)
	for i := 1; i < len(views); i++ {
		assert.Greater(t, views[i].Version, views[i-1].Version)
	}
	last := views[len(views)-1]
	assert.False(t, last.IsGenerating)
	assert.Equal(t, o.Snapshot().Version, last.Version)
	require.NotNil(t, last.Draft)
	assert.Len(t, last.Draft.Questions, 1)
}
