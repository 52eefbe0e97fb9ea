package summarizer

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventJSONShapes(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{"start", startEvent(0), `{"type":"start","totalChunks":0}`},
		{"chunk", chunkEvent(ChunkResult{Index: 0, Summary: "<b>A</b>"}), `{"type":"chunk","index":0,"content":"<b>A</b>","cached":false}`},
		{"done", doneEvent("S", true), `{"type":"done","summary":"S","cached":true}`},
		{"error", errorEvent(fetchError(errors.New("boom"))), `{"type":"error","error":"fetch failed: boom","kind":"fetch_error"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, NewNDJSONEmitter(&buf).Emit(tt.ev))
			assert.Equal(t, tt.want+"\n", buf.String())
		})
	}
}

func TestEventMarshalsDirectly(t *testing.T) {
	raw, err := json.Marshal(startEvent(4))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"start","totalChunks":4}`, string(raw))
}
