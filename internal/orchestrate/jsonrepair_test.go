package orchestrate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStripCodeFenceRemovesJSONFence(t *testing.T) {
	in := "```json\n{\"a\":1}\n```"
	require.Equal(t, `{"a":1}`, stripCodeFence(in))
}

func TestRepairJSONClosesOpenString(t *testing.T) {
	in := `{"answer": "hello world`
	repaired := repairJSON(in)
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(repaired), &v))
	require.Equal(t, "hello world", v["answer"])
}

func TestRepairJSONBalancesBrackets(t *testing.T) {
	in := `{"gaps": [{"gap_description": "x"`
	repaired := repairJSON(in)
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(repaired), &v))
	gaps, ok := v["gaps"].([]any)
	require.True(t, ok)
	require.Len(t, gaps, 1)
}

func TestDecodeJSONWithRepairFallsBackOnTruncation(t *testing.T) {
	var out struct {
		Answer string `json:"answer"`
	}
	ok := decodeJSONWithRepair(`{"answer": "partial`, &out)
	require.True(t, ok)
	require.Equal(t, "partial", out.Answer)
}

func TestDecodeJSONWithRepairStripsFence(t *testing.T) {
	var out struct {
		Queries []string `json:"queries"`
	}
	ok := decodeJSONWithRepair("```json\n{\"queries\": [\"a\", \"b\"]}\n```", &out)
	require.True(t, ok)
	require.Equal(t, []string{"a", "b"}, out.Queries)
}
