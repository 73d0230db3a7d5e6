package stream

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnmikel306/learntrack-sub002/internal/domain"
	"github.com/johnmikel306/learntrack-sub002/internal/metrics"
)

const sampleStream = "data: {\"type\":\"session_started\",\"session_id\":\"s1\"}\n" +
	"data: {\"type\":\"thinking\",\"step\":\"analyzing material\"}\n" +
	"data: {\"event_type\":\"action_started\",\"action\":\"drafting\"}\n" +
	"data: {\"type\":\"source_found\",\"source_id\":\"m1\",\"source_title\":\"Cells\",\"source_excerpt\":\"...\"}\n" +
	"data: {\"type\":\"content_chunk\",\"content\":\"What is\"}\n" +
	"data: {\"type\":\"question_completed\",\"question_data\":{\"id\":\"q1\",\"text\":\"What is a cell?\",\"type\":\"MCQ\",\"options\":[\"a\",\"b\"],\"correct_answer\":\"a\"}}\n" +
	"data: {\"type\":\"stream_done\"}\n"

func collect(t *testing.T, d *Decoder, r io.Reader) ([]domain.GenerationEvent, error) {
	t.Helper()
	var events []domain.GenerationEvent
	for ev, err := range d.Events(r) {
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func TestEventsDecodesInOrder(t *testing.T) {
	events, err := collect(t, NewDecoder(nil, nil), strings.NewReader(sampleStream))
	require.NoError(t, err)
	require.Len(t, events, 7)

	want := []domain.GenerationEventType{
		domain.EventSessionStarted,
		domain.EventThinkingStep,
		domain.EventActionStarted,
		domain.EventSourceFound,
		domain.EventContentChunk,
		domain.EventQuestionCompleted,
		domain.EventStreamDone,
	}
	for i, ev := range events {
		assert.Equal(t, want[i], ev.Type)
	}
	assert.Equal(t, "s1", events[0].SessionID)
	assert.Equal(t, "analyzing material", events[1].Text)
	assert.Equal(t, "drafting", events[2].Text)
	assert.Equal(t, "Cells", events[3].Source.Title)
	assert.Equal(t, "q1", events[5].Question.QuestionID)
	assert.Equal(t, domain.QuestionTypeMultipleChoice, events[5].Question.Type)
}

func TestEventsSurvivesSplitReads(t *testing.T) {
	whole, err := collect(t, NewDecoder(nil, nil), strings.NewReader(sampleStream))
	require.NoError(t, err)

	split, err := collect(t, NewDecoder(nil, nil), iotest.OneByteReader(strings.NewReader(sampleStream)))
	require.NoError(t, err)

	assert.Equal(t, whole, split)
}

func TestFeedBuffersTrailingFragment(t *testing.T) {
	d := NewDecoder(nil, nil)

	events := d.Feed([]byte("data: {\"type\":\"thinking\",\"st"))
	assert.Empty(t, events)
	assert.Positive(t, d.Buffered())

	events = d.Feed([]byte("ep\":\"one\"}\r\ndata: {\"type\":\"thinking\",\"step\":\"two\"}\n"))
	require.Len(t, events, 2)
	assert.Equal(t, "one", events[0].Text)
	assert.Equal(t, "two", events[1].Text)
	assert.Zero(t, d.Buffered())
}

func TestMalformedAndUnknownRecordsAreSkipped(t *testing.T) {
	m := metrics.New()
	input := "event: message\n" +
		": keep-alive\n" +
		"\n" +
		"data: {not json}\n" +
		"data: {\"type\":\"heartbeat\"}\n" +
		"data: {\"type\":\"question_completed\"}\n" +
		"data: {\"type\":\"content_chunk\",\"content\":\"ok\"}\n"

	events, err := collect(t, NewDecoder(nil, m), strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ok", events[0].Text)
}

func TestNothingAfterStreamDone(t *testing.T) {
	input := "data: {\"type\":\"stream_done\"}\n" +
		"data: {\"type\":\"content_chunk\",\"content\":\"late\"}\n"

	d := NewDecoder(nil, nil)
	events, err := collect(t, d, strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, d.Done())
	assert.Nil(t, d.Feed([]byte("data: {\"type\":\"thinking\",\"step\":\"x\"}\n")))
}

func TestUnterminatedFragmentAtEOFIsDropped(t *testing.T) {
	input := "data: {\"type\":\"thinking\",\"step\":\"a\"}\ndata: {\"type\":\"thinking\",\"step\":\"b\"}"

	events, err := collect(t, NewDecoder(nil, nil), strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "a", events[0].Text)
}

func TestReadErrorEndsSequence(t *testing.T) {
	boom := errors.New("connection reset")
	r := io.MultiReader(
		strings.NewReader("data: {\"type\":\"thinking\",\"step\":\"a\"}\n"),
		iotest.ErrReader(boom),
	)

	events, err := collect(t, NewDecoder(nil, nil), r)
	require.ErrorIs(t, err, boom)
	assert.Len(t, events, 1)
}

func TestParseRecord(t *testing.T) {
	_, err := ParseRecord("id: 7")
	assert.ErrorIs(t, err, ErrNotRecord)

	_, err = ParseRecord(`data: {"type":"mystery"}`)
	assert.ErrorIs(t, err, ErrUnknownEvent)

	ev, err := ParseRecord(`data:{"type":"error","message":"quota exceeded"}`)
	require.NoError(t, err)
	assert.Equal(t, domain.EventError, ev.Type)
	assert.Equal(t, "quota exceeded", ev.Message)
}
