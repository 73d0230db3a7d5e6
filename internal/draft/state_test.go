package draft

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnmikel306/learntrack-sub002/internal/domain"
)

func sessionStarted(id string) domain.GenerationEvent {
	return domain.GenerationEvent{Type: domain.EventSessionStarted, SessionID: id}
}

func thinking(text string) domain.GenerationEvent {
	return domain.GenerationEvent{Type: domain.EventThinkingStep, Text: text}
}

func chunk(text string) domain.GenerationEvent {
	return domain.GenerationEvent{Type: domain.EventContentChunk, Text: text}
}

func completed(id string) domain.GenerationEvent {
	return domain.GenerationEvent{Type: domain.EventQuestionCompleted, Question: &domain.Question{
		QuestionID: id,
		Text:       "question " + id,
		Type:       domain.QuestionTypeMultipleChoice,
	}}
}

var streamDone = domain.GenerationEvent{Type: domain.EventStreamDone}

func TestFoldSingleQuestionScenario(t *testing.T) {
	s := Fold(1, []domain.GenerationEvent{
		sessionStarted("s1"),
		thinking("analyzing material"),
		completed("q1"),
		streamDone,
	})

	require.Len(t, s.Questions, 1)
	q := s.Questions[0]
	assert.Equal(t, "q1", q.QuestionID)
	assert.Equal(t, domain.QuestionStatusPending, q.Status)
	assert.Equal(t, "s1", q.SessionID)
	assert.Equal(t, []string{"analyzing material"}, s.ThinkingSteps)
	assert.True(t, s.Done)
	assert.False(t, s.Partial)
	assert.Equal(t, Progress{Current: 1, Total: 1}, s.Progress)
}

func TestThinkingStepsKeepLastFive(t *testing.T) {
	s := New(0)
	for i := 1; i <= 7; i++ {
		require.NoError(t, s.Apply(thinking(fmt.Sprintf("step %d", i))))
	}
	assert.Equal(t, []string{"step 3", "step 4", "step 5", "step 6", "step 7"}, s.ThinkingSteps)
}

func TestStreamingTextAndActionResetOnCompletion(t *testing.T) {
	s := New(2)
	require.NoError(t, s.Apply(sessionStarted("s1")))
	require.NoError(t, s.Apply(domain.GenerationEvent{Type: domain.EventActionStarted, Text: "writing"}))
	require.NoError(t, s.Apply(chunk("What ")))
	require.NoError(t, s.Apply(chunk("is")))
	assert.Equal(t, "What is", s.StreamingText)
	assert.Equal(t, "writing", s.CurrentAction)

	require.NoError(t, s.Apply(completed("q1")))
	assert.Empty(t, s.StreamingText)
	assert.Empty(t, s.CurrentAction)

	require.NoError(t, s.Apply(domain.GenerationEvent{Type: domain.EventActionStarted, Text: "checking"}))
	require.NoError(t, s.Apply(streamDone))
	assert.Empty(t, s.CurrentAction)
}

func TestSourcesAllowDuplicates(t *testing.T) {
	src := &domain.Source{ID: "m1", Title: "Cells"}
	s := Fold(0, []domain.GenerationEvent{
		{Type: domain.EventSourceFound, Source: src},
		{Type: domain.EventSourceFound, Source: src},
	})
	assert.Len(t, s.FoundSources, 2)
}

func TestEarlyStreamEndIsPartialWithoutPlaceholders(t *testing.T) {
	s := Fold(5, []domain.GenerationEvent{
		sessionStarted("s1"),
		completed("q1"),
		completed("q2"),
		streamDone,
	})

	assert.True(t, s.Done)
	assert.True(t, s.Partial)
	assert.False(t, s.Failed)
	assert.Len(t, s.Questions, 2)
	assert.Equal(t, Progress{Current: 2, Total: 5}, s.Progress)
}

func TestProgressNeverExceedsTotal(t *testing.T) {
	s := Fold(1, []domain.GenerationEvent{
		sessionStarted("s1"),
		completed("q1"),
		completed("q2"),
	})
	assert.Len(t, s.Questions, 2)
	assert.Equal(t, 1, s.Progress.Current)
}

func TestEventsAfterDoneAreRejected(t *testing.T) {
	s := New(1)
	require.NoError(t, s.Apply(streamDone))
	assert.ErrorIs(t, s.Apply(completed("late")), ErrStreamClosed)
	assert.Empty(t, s.Questions)
}

func TestSecondSessionIsRejected(t *testing.T) {
	s := New(1)
	require.NoError(t, s.Apply(sessionStarted("s1")))
	require.NoError(t, s.Apply(sessionStarted("s1")))
	assert.ErrorIs(t, s.Apply(sessionStarted("s2")), ErrDuplicateSession)
	assert.Equal(t, "s1", s.SessionID)
}

func TestErrorEventKeepsMaterialisedQuestions(t *testing.T) {
	s := Fold(3, []domain.GenerationEvent{
		sessionStarted("s1"),
		completed("q1"),
		{Type: domain.EventError, Message: "model overloaded"},
	})
	assert.True(t, s.Done)
	assert.True(t, s.Failed)
	assert.Equal(t, "model overloaded", s.Error)
	assert.Len(t, s.Questions, 1)
}

func TestQuestionKeepsItsOwnSessionID(t *testing.T) {
	ev := completed("q1")
	ev.Question.SessionID = "other"
	s := Fold(1, []domain.GenerationEvent{sessionStarted("s1"), ev})
	assert.Equal(t, "other", s.Questions[0].SessionID)
}

func TestSnapshotIsIndependent(t *testing.T) {
	s := Fold(1, []domain.GenerationEvent{sessionStarted("s1"), completed("q1")})
	snap := s.Snapshot()
	snap.Questions[0].Status = domain.QuestionStatusApproved
	assert.Equal(t, domain.QuestionStatusPending, s.Questions[0].Status)
}

func TestQuestionCountMatchesCompletedEvents(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 200; trial++ {
		events := []domain.GenerationEvent{sessionStarted("s1")}
		want := 0
		for i := 0; i < rng.Intn(40); i++ {
			switch rng.Intn(5) {
			case 0:
				events = append(events, thinking("t"))
			case 1:
				events = append(events, chunk("c"))
			case 2:
				events = append(events, domain.GenerationEvent{Type: domain.EventSourceFound, Source: &domain.Source{ID: "m"}})
			default:
				want++
				events = append(events, completed(fmt.Sprintf("q%d", i)))
			}
		}
		events = append(events, streamDone)

		total := rng.Intn(10)
		s := Fold(total, events)
		require.Len(t, s.Questions, want, "trial %d", trial)
		if total > 0 {
			assert.LessOrEqual(t, s.Progress.Current, total)
		}
		for _, q := range s.Questions {
			assert.Equal(t, "s1", q.SessionID)
			assert.Equal(t, domain.QuestionStatusPending, q.Status)
		}
	}
}
