package bant

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

func newExtractor(client *llmtest.Client) (*Extractor, *ledger.MemoryStore) {
	store := ledger.NewMemoryStore()
	gw := llm.NewGateway(client, ledger.New(store, nil), nil, llm.GatewayConfig{Model: "scripted-1"})
	return NewExtractor(gw, nil), store
}

func TestExtract_SoleDecisionMaker(t *testing.T) {
	client := llmtest.New().Text(model.OpBANTExtraction, `{"authority": "sole", "budget": null}`)
	ex, store := newExtractor(client)

	budget := model.MoneyFromMajor(25_000_000, "PHP")
	upd, err := ex.Extract(context.Background(), Request{
		Message:  "I'm the sole decision maker",
		Current:  model.BANTRecord{Budget: &budget},
		Stage:    model.StageAwaitingAuthority,
		Currency: "PHP",
	})
	require.NoError(t, err)

	require.NotNil(t, upd.Authority)
	assert.Equal(t, model.AuthoritySole, *upd.Authority)
	assert.Nil(t, upd.Budget)
	assert.Nil(t, upd.ContactName)
	assert.Equal(t, 1, client.Count(model.OpBANTExtraction))
	assert.Equal(t, 0, client.Count(model.OpContactExtraction))
	assert.Equal(t, 1, store.Len())
}

func TestExtract_UnparseableAnswerFallsBackToParsers(t *testing.T) {
	client := llmtest.New().Text(model.OpBANTExtraction, "Sure! The buyer decides alone.")
	ex, _ := newExtractor(client)

	upd, err := ex.Extract(context.Background(), Request{
		Message: "I'm the one deciding",
		Stage:   model.StageAwaitingAuthority,
	})
	require.NoError(t, err)
	require.NotNil(t, upd.Authority)
	assert.Equal(t, model.AuthoritySole, *upd.Authority)
}

func TestExtract_MultiFieldMessage(t *testing.T) {
	client := llmtest.New().Text(model.OpBANTExtraction,
		"```json\n{\"budget\": \"₱25,000,000.00\", \"authority\": \"sole\", \"need\": \"residency\", \"timeline\": null}\n```")
	ex, _ := newExtractor(client)

	upd, err := ex.Extract(context.Background(), Request{
		Message:  "Budget is ₱25,000,000.00, I decide alone, it's for residency",
		Stage:    model.StageAwaitingBudget,
		Currency: "PHP",
	})
	require.NoError(t, err)

	require.NotNil(t, upd.Budget)
	assert.Equal(t, int64(2_500_000_000), upd.Budget.Amount)
	require.NotNil(t, upd.Authority)
	assert.Equal(t, model.AuthoritySole, *upd.Authority)
	require.NotNil(t, upd.Need)
	assert.Equal(t, "residence", *upd.Need)
	assert.Nil(t, upd.Timeline)
	assert.Equal(t, model.NewFieldSet(model.FieldBudget, model.FieldAuthority, model.FieldNeed), upd.Fields())
}

func TestExtract_NormalizationCallForWordedBudget(t *testing.T) {
	client := llmtest.New().
		Text(model.OpBANTExtraction, `{"budget": "twenty five million pesos"}`).
		Text(model.OpBANTNormalization, `{"amount": 25000000, "currency": "PHP"}`)
	ex, store := newExtractor(client)

	upd, err := ex.Extract(context.Background(), Request{
		Message:  "twenty five million pesos",
		Stage:    model.StageAwaitingBudget,
		Currency: "PHP",
	})
	require.NoError(t, err)
	require.NotNil(t, upd.Budget)
	assert.Equal(t, model.MoneyFromMajor(25_000_000, "PHP"), *upd.Budget)
	assert.Equal(t, 1, client.Count(model.OpBANTNormalization))

	ops := map[model.OperationType]int{}
	for _, rec := range store.Records() {
		ops[rec.OperationType]++
	}
	assert.Equal(t, map[model.OperationType]int{
		model.OpBANTExtraction:    1,
		model.OpBANTNormalization: 1,
	}, ops)
}

func TestExtract_AmbiguousNormalizationIsDropped(t *testing.T) {
	client := llmtest.New().
		Text(model.OpBANTExtraction, `{"budget": "depends on the bank"}`).
		Text(model.OpBANTNormalization, `{"amount": null}`)
	ex, _ := newExtractor(client)

	upd, err := ex.Extract(context.Background(), Request{Message: "depends on the bank", Stage: model.StageAwaitingBudget})
	require.NoError(t, err)
	assert.True(t, upd.IsEmpty())
}

func TestExtract_TerseContactReply(t *testing.T) {
	client := llmtest.New().
		Text(model.OpBANTExtraction, `{}`).
		Text(model.OpContactExtraction, `{"name": null, "phone": null, "email": null}`)
	ex, store := newExtractor(client)

	upd, err := ex.Extract(context.Background(), Request{
		Message:          "Samuel Jackson, 098124814122",
		Stage:            model.StageAwaitingContact,
		ContactRequested: true,
	})
	require.NoError(t, err)

	require.NotNil(t, upd.ContactName)
	require.NotNil(t, upd.ContactPhone)
	assert.Equal(t, "Samuel Jackson", *upd.ContactName)
	assert.Equal(t, "098124814122", *upd.ContactPhone)
	assert.Nil(t, upd.Budget)
	assert.Equal(t, 1, client.Count(model.OpContactExtraction))
	assert.Equal(t, 2, store.Len())
}

func TestExtract_ContactFromModelFillsGaps(t *testing.T) {
	client := llmtest.New().
		Text(model.OpBANTExtraction, `{}`).
		Text(model.OpContactExtraction, `{"name": "Lea Salonga", "phone": null, "email": "LEA@example.com"}`)
	ex, _ := newExtractor(client)

	upd, err := ex.Extract(context.Background(), Request{
		Message:          "you can email me at lea@example.com, Lea here",
		Stage:            model.StageQualified,
		ContactRequested: true,
	})
	require.NoError(t, err)
	require.NotNil(t, upd.ContactEmail)
	assert.Equal(t, "lea@example.com", *upd.ContactEmail)
	require.NotNil(t, upd.ContactName)
	assert.Equal(t, "Lea Salonga", *upd.ContactName)
}

func TestExtract_NoiseYieldsEmptyUpdate(t *testing.T) {
	client := llmtest.New().Text(model.OpBANTExtraction, `{"budget": "5M"}`)
	ex, store := newExtractor(client)

	for _, msg := range []string{"🙂🙂🙂", "?!?!", "   "} {
		upd, err := ex.Extract(context.Background(), Request{Message: msg, Stage: model.StageAwaitingBudget})
		require.NoError(t, err)
		assert.True(t, upd.IsEmpty(), msg)
	}
	assert.Equal(t, 3, store.Len())
}

func TestExtract_ProviderErrorAborts(t *testing.T) {
	client := llmtest.New().On(model.OpBANTExtraction, llmtest.Reply{Err: llmtest.ErrUnavailable})
	ex, store := newExtractor(client)

	_, err := ex.Extract(context.Background(), Request{Message: "5 million", Stage: model.StageAwaitingBudget})
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrProvider)
	assert.Equal(t, 1, store.Len())
	assert.True(t, store.Records()[0].Failed)
}

func TestExtract_RevisionCue(t *testing.T) {
	client := llmtest.New().Text(model.OpBANTExtraction, `{"budget": "8 million"}`)
	ex, _ := newExtractor(client)

	current := model.MoneyFromMajor(5_000_000, "PHP")
	upd, err := ex.Extract(context.Background(), Request{
		Message:  "actually make it 8 million",
		Current:  model.BANTRecord{Budget: &current},
		Stage:    model.StageAwaitingNeed,
		Currency: "PHP",
	})
	require.NoError(t, err)
	require.NotNil(t, upd.Budget)
	assert.True(t, upd.Revisions.Has(model.FieldBudget))
}

func TestExtract_RevisionListedByModel(t *testing.T) {
	client := llmtest.New().Text(model.OpBANTExtraction, `{"timeline": "6 months", "revised": ["timeline", "budget"]}`)
	ex, _ := newExtractor(client)

	upd, err := ex.Extract(context.Background(), Request{Message: "we'll buy in 6 months", Stage: model.StageAwaitingContact})
	require.NoError(t, err)
	assert.True(t, upd.Revisions.Has(model.FieldTimeline))
	assert.False(t, upd.Revisions.Has(model.FieldBudget))
}

func TestExtract_NonAnswersAreNotNeeds(t *testing.T) {
	tests := []struct {
		msg  string
		want string
	}{
		{"OK", ""},
		{"hello", ""},
		{"LOL", ""},
		{"hmm", ""},
		{"not sure yet", ""},
		{"Great thanks", ""},
		{"residency", "residence"},
		{"to rent it out", "investment"},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			ex, _ := newExtractor(llmtest.New().Text(model.OpBANTExtraction, `{}`))

			upd, err := ex.Extract(context.Background(), Request{Message: tt.msg, Stage: model.StageAwaitingNeed})
			require.NoError(t, err)
			if tt.want == "" {
				assert.Nil(t, upd.Need)
				return
			}
			require.NotNil(t, upd.Need)
			assert.Equal(t, tt.want, *upd.Need)
		})
	}
}

func TestExtract_FreeFormNeedFromModel(t *testing.T) {
	tests := []struct {
		answer string
		want   string
	}{
		{`{"need": "student housing"}`, "student housing"},
		{`{"need": "ok"}`, ""},
		{`{"need": "not sure yet"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			ex, _ := newExtractor(llmtest.New().Text(model.OpBANTExtraction, tt.answer))

			upd, err := ex.Extract(context.Background(), Request{Message: "for my son who studies in Manila", Stage: model.StageAwaitingNeed})
			require.NoError(t, err)
			if tt.want == "" {
				assert.Nil(t, upd.Need)
				return
			}
			require.NotNil(t, upd.Need)
			assert.Equal(t, tt.want, *upd.Need)
		})
	}
}

func TestExtract_CountsAreNotBudgets(t *testing.T) {
	tests := []struct {
		msg  string
		want *model.Money
	}{
		{"3 bedrooms", nil},
		{"2 kids", nil},
		{"I have 2 kids", nil},
		{"25000000", ptr(model.MoneyFromMajor(25_000_000, "PHP"))},
		{"25M", ptr(model.MoneyFromMajor(25_000_000, "PHP"))},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			ex, _ := newExtractor(llmtest.New().Text(model.OpBANTExtraction, `{}`))

			upd, err := ex.Extract(context.Background(), Request{Message: tt.msg, Stage: model.StageAwaitingBudget, Currency: "PHP"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, upd.Budget)
		})
	}
}

func TestExtract_AcknowledgementIsNotAName(t *testing.T) {
	client := llmtest.New().
		Text(model.OpBANTExtraction, `{}`).
		Text(model.OpContactExtraction, `{}`)
	ex, _ := newExtractor(client)

	var current model.BANTRecord
	for _, msg := range []string{"Great thanks", "Samuel Jackson, 098124814122"} {
		upd, err := ex.Extract(context.Background(), Request{
			Message:          msg,
			Current:          current,
			Stage:            model.StageAwaitingContact,
			ContactRequested: true,
		})
		require.NoError(t, err, msg)
		current, _ = Merge(current, upd)
	}

	assert.Equal(t, "Samuel Jackson", current.ContactName)
	assert.Equal(t, "098124814122", current.ContactPhone)
	assert.Equal(t, 2, client.Count(model.OpContactExtraction))
}

func TestExtract_SingleWordNameNeedsModelAgreement(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		want   *string
	}{
		{"model agrees", `{"name": "Juan"}`, ptr("Juan")},
		{"model silent", `{"name": null}`, nil},
		{"model unparseable", `not json`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex, _ := newExtractor(llmtest.New().
				Text(model.OpBANTExtraction, `{}`).
				Text(model.OpContactExtraction, tt.answer))

			upd, err := ex.Extract(context.Background(), Request{
				Message:          "juan",
				Stage:            model.StageAwaitingContact,
				ContactRequested: true,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, upd.ContactName)
		})
	}
}
