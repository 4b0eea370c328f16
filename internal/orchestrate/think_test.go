package orchestrate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestThinkParsesLLMResponse(t *testing.T) {
	resp := `{"thought_process":"reasoning here","preliminary_answer":"42","confidence_level":"high",
"knowledge_gaps":[],"needs_verification":false}`
	th := think(context.Background(), &fakeProvider{response: resp}, SubQuery{Question: "what is the answer"}, nil)
	require.Equal(t, "42", th.PreliminaryAnswer)
	require.Equal(t, ConfidenceHigh, th.ConfidenceLevel)
	require.Equal(t, "what is the answer", th.SubQuery)
}

func TestThinkFallsBackOnUnparseableResponse(t *testing.T) {
	th := think(context.Background(), &fakeProvider{response: "not json"}, SubQuery{Question: "q"}, nil)
	require.Equal(t, ConfidenceLow, th.ConfidenceLevel)
	require.True(t, th.NeedsVerification)
	require.NotEmpty(t, th.KnowledgeGaps)
}

func TestAssessOverallConfidenceHigh(t *testing.T) {
	thoughts := []Thought{
		{ConfidenceLevel: ConfidenceHigh},
		{ConfidenceLevel: ConfidenceHigh},
		{ConfidenceLevel: ConfidenceHigh},
	}
	require.Equal(t, ConfidenceHigh, assessOverallConfidence(thoughts))
}

func TestAssessOverallConfidenceMedium(t *testing.T) {
	thoughts := []Thought{
		{ConfidenceLevel: ConfidenceHigh},
		{ConfidenceLevel: ConfidenceMedium},
		{ConfidenceLevel: ConfidenceLow},
	}
	require.Equal(t, ConfidenceMedium, assessOverallConfidence(thoughts))
}

func TestAssessOverallConfidenceLow(t *testing.T) {
	thoughts := []Thought{
		{ConfidenceLevel: ConfidenceLow},
		{ConfidenceLevel: ConfidenceLow},
	}
	require.Equal(t, ConfidenceLow, assessOverallConfidence(thoughts))
}

func TestShouldInvokeToolsOnHighImportanceGap(t *testing.T) {
	thoughts := []Thought{
		{ConfidenceLevel: ConfidenceHigh, KnowledgeGaps: []KnowledgeGap{{Importance: ImportanceHigh}}},
	}
	need, gaps := shouldInvokeTools(thoughts)
	require.True(t, need)
	require.Len(t, gaps, 1)
}

func TestShouldInvokeToolsOnNeedsVerification(t *testing.T) {
	thoughts := []Thought{
		{ConfidenceLevel: ConfidenceHigh, NeedsVerification: true},
	}
	need, _ := shouldInvokeTools(thoughts)
	require.True(t, need)
}

func TestShouldInvokeToolsFalseWhenConfidentAndNoGaps(t *testing.T) {
	thoughts := []Thought{
		{ConfidenceLevel: ConfidenceHigh},
		{ConfidenceLevel: ConfidenceHigh},
	}
	need, gaps := shouldInvokeTools(thoughts)
	require.False(t, need)
	require.Empty(t, gaps)
}

func TestIsSimpleQuery(t *testing.T) {
	require.True(t, isSimpleQuery("what is the capital of France"))
	require.False(t, isSimpleQuery("compare the capital of France and the capital of Germany in terms of population"))
	require.False(t, isSimpleQuery("what is the capital of France and what is its population"))
}
