package orchestrate

import (
	"context"
	"testing"

	"agenttic-rag/internal/llmprovider"

	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	response string
	err      error
}

func (f *fakeProvider) Complete(ctx context.Context, messages []llmprovider.Message, temperature float64) (string, error) {
	return f.response, f.err
}

func (f *fakeProvider) Stream(ctx context.Context, messages []llmprovider.Message, temperature float64, onDelta llmprovider.StreamFunc) error {
	if f.err != nil {
		return f.err
	}
	onDelta(f.response)
	return nil
}

func TestDecomposeShortCircuitsSimpleQuery(t *testing.T) {
	d, err := decompose(context.Background(), &fakeProvider{response: "should not be called"}, "what is the capital of France", nil)
	require.NoError(t, err)
	require.Len(t, d.SubQueries, 1)
	require.Equal(t, "what is the capital of France", d.SubQueries[0].Question)
}

func TestDecomposeParsesLLMResponse(t *testing.T) {
	query := "compare the economic policies of country A and country B in the last decade"
	resp := `{"sub_queries":[{"question":"A's policy","importance":"high"},{"question":"B's policy","importance":"medium"}],"key_entities":["A","B"],"verification_points":["dates"]}`
	d, err := decompose(context.Background(), &fakeProvider{response: resp}, query, nil)
	require.NoError(t, err)
	require.Len(t, d.SubQueries, 2)
	require.Equal(t, ImportanceHigh, d.SubQueries[0].Importance)
}

func TestDecomposeFallsBackOnUnparseableResponse(t *testing.T) {
	query := "compare the economic policies of country A and country B in the last decade"
	d, err := decompose(context.Background(), &fakeProvider{response: "not json at all"}, query, nil)
	require.NoError(t, err)
	require.Len(t, d.SubQueries, 1)
	require.Equal(t, query, d.SubQueries[0].Question)
}

func TestClassifyRouteParsesDecision(t *testing.T) {
	resp := `{"use_fast_route": true, "needs_tools": false, "reason": "simple"}`
	decision := classifyRoute(context.Background(), &fakeProvider{response: resp}, "hi", nil)
	require.True(t, decision.UseFastRoute)
	require.False(t, decision.NeedsTools)
}

func TestClassifyRouteDefaultsToFullPipelineOnError(t *testing.T) {
	decision := classifyRoute(context.Background(), &fakeProvider{err: context.DeadlineExceeded}, "hi", nil)
	require.False(t, decision.UseFastRoute)
	require.True(t, decision.NeedsTools)
}
