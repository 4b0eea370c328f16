package sse

import (
	"bufio"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterEmitsDataLinesWithTypeDiscriminator(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.Status("fetching"))
	require.NoError(t, w.Delta("hello"))
	require.NoError(t, w.Complete(map[string]any{"success": true}))

	scanner := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	var events []map[string]any
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var payload map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &payload))
		events = append(events, payload)
	}
	require.Len(t, events, 3)
	require.Equal(t, "status", events[0]["type"])
	require.Equal(t, "fetching", events[0]["phase"])
	require.Equal(t, "delta", events[1]["type"])
	require.Equal(t, "hello", events[1]["content"])
	require.Equal(t, "complete", events[2]["type"])
	require.Equal(t, true, events[2]["success"])
}

func TestWriterSetsSSEHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	_, err := NewWriter(rec)
	require.NoError(t, err)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
}
