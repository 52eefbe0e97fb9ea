package summarizer

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
)

// EventType enumerates progress events, in the order they are emitted.
type EventType string

const (
	EventStart EventType = "start"
	EventChunk EventType = "chunk"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// Event is one progress notification. Which fields are meaningful depends on
// Type: TotalChunks for start, Index/Content for chunk, Summary/Cached for done,
// Error/Kind for error.
type Event struct {
	Type        EventType
	TotalChunks int
	Index       int
	Content     string
	Summary     string
	Cached      bool
	Error       string
	Kind        Kind
}

// ChunkResult is one summarized chunk, from the cache or freshly computed.
type ChunkResult struct {
	Index   int
	Summary string
	Cached  bool

	// storeErr is set when the fresh summary could not be written to the
	// chunk cache.
	storeErr error
}

func startEvent(total int) Event { return Event{Type: EventStart, TotalChunks: total} }

func chunkEvent(r ChunkResult) Event {
	return Event{Type: EventChunk, Index: r.Index, Content: r.Summary, Cached: r.Cached}
}

func doneEvent(summary string, cached bool) Event {
	return Event{Type: EventDone, Summary: summary, Cached: cached}
}

func errorEvent(err error) Event {
	return Event{Type: EventError, Error: err.Error(), Kind: KindOf(err)}
}

// MarshalJSON writes only the fields of the event's type, so index 0 and
// totalChunks 0 survive while unrelated fields stay out of the record.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventStart:
		return marshalRaw(struct {
			Type        EventType `json:"type"`
			TotalChunks int       `json:"totalChunks"`
		}{e.Type, e.TotalChunks})
	case EventChunk:
		return marshalRaw(struct {
			Type    EventType `json:"type"`
			Index   int       `json:"index"`
			Content string    `json:"content"`
			Cached  bool      `json:"cached"`
		}{e.Type, e.Index, e.Content, e.Cached})
	case EventDone:
		return marshalRaw(struct {
			Type    EventType `json:"type"`
			Summary string    `json:"summary"`
			Cached  bool      `json:"cached"`
		}{e.Type, e.Summary, e.Cached})
	default:
		return marshalRaw(struct {
			Type  EventType `json:"type"`
			Error string    `json:"error"`
			Kind  Kind      `json:"kind"`
		}{EventError, e.Error, e.Kind})
	}
}

// marshalRaw encodes v without HTML escaping; summaries are shown verbatim.
func marshalRaw(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Emitter receives progress events in order. A nil Emitter means the caller
// only wants the final Result.
type Emitter interface {
	Emit(Event) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event) error

func (f EmitterFunc) Emit(e Event) error { return f(e) }

// NDJSONEmitter writes each event as one JSON line and flushes it, so a
// dropped connection can only lose whole records.
type NDJSONEmitter struct {
	enc     *json.Encoder
	flusher http.Flusher
}

func NewNDJSONEmitter(w io.Writer) *NDJSONEmitter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	e := &NDJSONEmitter{enc: enc}
	if f, ok := w.(http.Flusher); ok {
		e.flusher = f
	}
	return e
}

func (e *NDJSONEmitter) Emit(ev Event) error {
	if err := e.enc.Encode(ev); err != nil {
		return err
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}
