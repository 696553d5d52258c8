package intent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/ledger"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/llm"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/llm/llmtest"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/model"
)

func newRouter(answers ...string) (*Router, *llmtest.Client, *ledger.MemoryStore) {
	client := llmtest.New().Text(model.OpIntentClassification, answers...)
	store := ledger.NewMemoryStore()
	gw := llm.NewGateway(client, ledger.New(store, nil), nil, llm.GatewayConfig{Model: "scripted-1"})
	return NewRouter(gw, nil), client, store
}

func TestClassify_ResidencyMidFlowIsSticky(t *testing.T) {
	r, client, store := newRouter(`{"intent": "informational", "confidence": 0.7}`)

	c, err := r.Classify(context.Background(), Request{Message: "residency", Stage: model.StageAwaitingNeed})
	require.NoError(t, err)

	assert.Equal(t, model.IntentQualification, c.Intent)
	assert.Equal(t, model.IntentInformational, c.Raw)
	assert.True(t, c.Sticky)
	assert.Equal(t, 1, client.Count(model.OpIntentClassification))
	require.Equal(t, 1, store.Len())
	assert.Equal(t, model.OpIntentClassification, store.Records()[0].OperationType)
}

func TestClassify_ShortAnswerStickyEvenWhenConfident(t *testing.T) {
	r, _, _ := newRouter(`{"intent": "informational", "confidence": 0.99}`)

	c, err := r.Classify(context.Background(), Request{Message: "residency", Stage: model.StageAwaitingNeed})
	require.NoError(t, err)
	assert.Equal(t, model.IntentQualification, c.Intent)
}

func TestClassify_ConfidentQuestionLeavesFlow(t *testing.T) {
	r, _, _ := newRouter(`{"intent": "informational", "confidence": 0.95}`)

	c, err := r.Classify(context.Background(), Request{
		Message: "Do you have condos near the business district with a gym?",
		Stage:   model.StageAwaitingBudget,
	})
	require.NoError(t, err)
	assert.Equal(t, model.IntentInformational, c.Intent)
	assert.False(t, c.Sticky)
}

func TestClassify_NotStickyOutsideFlow(t *testing.T) {
	r, _, _ := newRouter(`{"intent": "informational", "confidence": 0.6}`)

	c, err := r.Classify(context.Background(), Request{Message: "residency", Stage: model.StageGreeting})
	require.NoError(t, err)
	assert.Equal(t, model.IntentInformational, c.Intent)

	c, err = r.Classify(context.Background(), Request{Message: "residency", Stage: model.StageQualified})
	require.NoError(t, err)
	assert.Equal(t, model.IntentInformational, c.Intent)
}

func TestClassify_HandoffAtAnyStage(t *testing.T) {
	r, _, _ := newRouter(`{"intent": "qualification", "confidence": 0.9}`)

	for _, stage := range []model.Stage{model.StageGreeting, model.StageAwaitingTimeline, model.StageQualified} {
		c, err := r.Classify(context.Background(), Request{Message: "can I talk to a human?", Stage: stage})
		require.NoError(t, err)
		assert.Equal(t, model.IntentHandoffRequest, c.Intent, stage.String())
	}
}

func TestClassify_ModelHandoffNotOverriddenBySticky(t *testing.T) {
	r, _, _ := newRouter(`{"intent": "handoff_request", "confidence": 0.8}`)

	c, err := r.Classify(context.Background(), Request{Message: "get me someone", Stage: model.StageAwaitingBudget})
	require.NoError(t, err)
	assert.Equal(t, model.IntentHandoffRequest, c.Intent)
}

func TestClassify_BareLabelAndGarbage(t *testing.T) {
	r, _, _ := newRouter("Estimation", "I am not sure what you mean", "I am not sure what you mean")

	c, err := r.Classify(context.Background(), Request{Message: "how much per month for 5M?", Stage: model.StageGreeting})
	require.NoError(t, err)
	assert.Equal(t, model.IntentEstimation, c.Intent)

	c, err = r.Classify(context.Background(), Request{Message: "hmm", Stage: model.StageGreeting})
	require.NoError(t, err)
	assert.Equal(t, model.IntentInformational, c.Intent)

	c, err = r.Classify(context.Background(), Request{Message: "hmm", Stage: model.StageAwaitingAuthority})
	require.NoError(t, err)
	assert.Equal(t, model.IntentQualification, c.Intent)
}

func TestClassify_ProviderError(t *testing.T) {
	client := llmtest.New().On(model.OpIntentClassification, llmtest.Reply{Err: llmtest.ErrUnavailable})
	store := ledger.NewMemoryStore()
	gw := llm.NewGateway(client, ledger.New(store, nil), nil, llm.GatewayConfig{})
	r := NewRouter(gw, nil)

	_, err := r.Classify(context.Background(), Request{Message: "hi"})
	require.Error(t, err)
	assert.True(t, llm.IsProviderError(err))
	assert.Equal(t, 1, store.Len())
}
