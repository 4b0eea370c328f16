package toolregistry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseReActResponseWithAction(t *testing.T) {
	text := "Thought: I need to search\nAction: web_search\nAction Input: {\"query\": \"golang\"}\n"
	r := parseReActResponse(text)
	require.False(t, r.Done)
	require.Equal(t, "I need to search", r.Thought)
	require.NotNil(t, r.Call)
	require.Equal(t, "web_search", r.Call.Name)
	require.JSONEq(t, `{"query":"golang"}`, string(r.Call.Arguments))
}

func TestParseReActResponseFinalAnswer(t *testing.T) {
	text := "Thought: I know this\nFinal Answer: the answer is 42"
	r := parseReActResponse(text)
	require.True(t, r.Done)
	require.Equal(t, "the answer is 42", r.FinalAnswer)
}

func TestParseReActResponseFallsBackToFinalAnswerWhenUnparseable(t *testing.T) {
	r := parseReActResponse("just a plain sentence with no protocol markers")
	require.True(t, r.Done)
	require.Equal(t, "just a plain sentence with no protocol markers", r.FinalAnswer)
}

func TestParseActionInputKeyValueFallback(t *testing.T) {
	raw := parseActionInput("query=golang, limit=5")
	require.JSONEq(t, `{"query":"golang","limit":"5"}`, string(raw))
}

func TestParseActionInputRawTextFallback(t *testing.T) {
	raw := parseActionInput("just some text")
	require.JSONEq(t, `{"input":"just some text"}`, string(raw))
}

func TestParseHarmonyResponseXMLTool(t *testing.T) {
	text := `<tool name="web_search">{"query": "golang"}</tool>`
	r := parseHarmonyResponse(text)
	require.NotNil(t, r.Call)
	require.Equal(t, "web_search", r.Call.Name)
	require.JSONEq(t, `{"query":"golang"}`, string(r.Call.Arguments))
}

func TestParseHarmonyResponseChannelCommentary(t *testing.T) {
	text := `<|channel|>commentary to=web_search <|constrain|>json<|message|>{"query": "golang"}<|end|>`
	r := parseHarmonyResponse(text)
	require.NotNil(t, r.Call)
	require.Equal(t, "web_search", r.Call.Name)
}

func TestParseHarmonyResponsePlainTextIsFinalAnswer(t *testing.T) {
	r := parseHarmonyResponse("the answer is 42")
	require.True(t, r.Done)
	require.Equal(t, "the answer is 42", r.FinalAnswer)
}

func TestSearchFingerprintIgnoresQueryCaseAndFilterOrder(t *testing.T) {
	a := searchFingerprint("Golang Tutorials", []string{"b", "a"}, "gpt-oss")
	b := searchFingerprint("golang   tutorials", []string{"a", "b"}, "gpt-oss")
	require.Equal(t, a, b)
}

func TestSearchFingerprintDiffersByModel(t *testing.T) {
	a := searchFingerprint("golang", nil, "model-a")
	b := searchFingerprint("golang", nil, "model-b")
	require.NotEqual(t, a, b)
}

func TestHarmonyDedupWebSearchRoundTrip(t *testing.T) {
	s := NewHarmonyStrategy(nil, 0, "gpt-oss")
	_, ok := s.DedupWebSearch("golang", []string{"news"})
	require.False(t, ok)

	s.RememberWebSearch("golang", []string{"news"}, CallResult{Success: true, Result: "cached"})
	got, ok := s.DedupWebSearch("golang", []string{"news"})
	require.True(t, ok)
	require.Equal(t, "cached", got.Result)
}
