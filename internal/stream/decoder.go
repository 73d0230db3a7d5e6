// Package stream decodes the generation backend's event stream.
package stream

import (
	"bytes"
	"encoding/json"
	"io"
	"iter"
	"strings"

	"github.com/pkg/errors"

	"github.com/johnmikel306/learntrack-sub002/internal/domain"
	"github.com/johnmikel306/learntrack-sub002/internal/metrics"
	"github.com/johnmikel306/learntrack-sub002/internal/platform/logger"
)

const recordPrefix = "data:"

var (
	// ErrNotRecord is returned for lines that do not carry the data marker.
	ErrNotRecord = errors.New("not a data record")
	// ErrUnknownEvent is returned for records whose type is not recognised.
	ErrUnknownEvent = errors.New("unknown event type")
)

// ParseRecord decodes a single line of the stream.
func ParseRecord(line string) (domain.GenerationEvent, error) {
	line = strings.TrimSuffix(line, "\r")
	if !strings.HasPrefix(line, recordPrefix) {
		return domain.GenerationEvent{}, ErrNotRecord
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, recordPrefix))
	if payload == "" {
		return domain.GenerationEvent{}, ErrNotRecord
	}

	var rec domain.EventRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return domain.GenerationEvent{}, errors.Wrap(err, "decode record")
	}
	ev, ok := rec.Event()
	if !ok {
		return domain.GenerationEvent{}, errors.Wrapf(ErrUnknownEvent, "type %q", rec.Type+rec.EventType)
	}
	return ev, nil
}

// Decoder turns raw stream bytes into generation events. It buffers the
// trailing fragment of each read and only decodes complete lines. A Decoder
// serves one stream and is not safe for concurrent use.
type Decoder struct {
	buf     []byte
	done    bool
	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewDecoder creates a decoder. The metrics argument may be nil.
func NewDecoder(log *logger.Logger, m *metrics.Metrics) *Decoder {
	if log == nil {
		log = logger.Nop()
	}
	return &Decoder{log: log.With("component", "stream.Decoder"), metrics: m}
}

// Done reports whether the terminal stream_done event has been decoded.
func (d *Decoder) Done() bool { return d.done }

// Buffered returns the number of bytes held back waiting for a line end.
func (d *Decoder) Buffered() int { return len(d.buf) }

// Feed consumes the next chunk read from the stream and returns the events
// completed by it, in arrival order. Nothing is returned once stream_done
// has been seen.
func (d *Decoder) Feed(chunk []byte) []domain.GenerationEvent {
	if d.done {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	var out []domain.GenerationEvent
	for !d.done {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := string(d.buf[:i])
		d.buf = d.buf[i+1:]

		ev, err := ParseRecord(line)
		if err != nil {
			if !errors.Is(err, ErrNotRecord) {
				d.metrics.RecordSkipped()
				d.log.Debug("skipping stream record", "error", err)
			}
			continue
		}
		d.metrics.EventDecoded(string(ev.Type))
		out = append(out, ev)
		if ev.Type == domain.EventStreamDone {
			d.done = true
			d.buf = nil
		}
	}
	return out
}

// Events returns the ordered sequence of events read from r. The sequence
// ends after stream_done, at EOF, or with a final non-nil error when the
// read fails.
func (d *Decoder) Events(r io.Reader) iter.Seq2[domain.GenerationEvent, error] {
	return func(yield func(domain.GenerationEvent, error) bool) {
		chunk := make([]byte, 4096)
		for {
			n, err := r.Read(chunk)
			if n > 0 {
				for _, ev := range d.Feed(chunk[:n]) {
					if !yield(ev, nil) {
						return
					}
				}
				if d.done {
					return
				}
			}
			if err == nil {
				continue
			}
			if err != io.EOF {
				yield(domain.GenerationEvent{}, err)
				return
			}
			if len(d.buf) > 0 {
				d.log.Debug("discarding unterminated trailing fragment", "bytes", len(d.buf))
				d.buf = nil
			}
			return
		}
	}
}
