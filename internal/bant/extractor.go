package bant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/llm"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/model"
	"github.com/marwie0904/leadify-RE-APP-sub004/pkg/logger"
)

// ErrAmbiguous marks a value that could not be normalized. It never leaves the
// package as an error: ambiguous values are dropped from the update.
var ErrAmbiguous = errors.New("extraction ambiguous")

// Invoker is the subset of the model gateway the extractor uses.
type Invoker interface {
	Invoke(ctx context.Context, inv llm.Invocation) (*llm.Result, error)
}

// Request is one extraction.
type Request struct {
	Message          string
	History          []llm.ChatMessage
	Current          model.BANTRecord
	Stage            model.Stage
	ContactRequested bool
	Currency         string
	Scope            llm.Scope
}

// targetsContact reports whether contact details are being collected.
func (r Request) targetsContact() bool {
	return r.Stage == model.StageAwaitingContact || r.ContactRequested
}

// Extractor turns one message into a typed partial update.
type Extractor struct {
	gw  Invoker
	log *logger.Logger
}

// NewExtractor creates an extractor.
func NewExtractor(gw Invoker, log *logger.Logger) *Extractor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Extractor{gw: gw, log: log}
}

type rawExtraction struct {
	Budget       any      `json:"budget"`
	Authority    any      `json:"authority"`
	Need         any      `json:"need"`
	Timeline     any      `json:"timeline"`
	ContactName  any      `json:"contact_name"`
	ContactPhone any      `json:"contact_phone"`
	ContactEmail any      `json:"contact_email"`
	Revised      []string `json:"revised"`
}

type rawContact struct {
	Name  any `json:"name"`
	Phone any `json:"phone"`
	Email any `json:"email"`
}

var revisionCueRE = regexp.MustCompile(`(?i)\b(?:actually|instead|change(?:d)?|correction|update|scratch that|make it|rather|i meant|not anymore|now it'?s)\b`)

// Extract makes one bant_extraction call, one contact_extraction call when
// contact is being collected, and one bant_normalization call per budget or
// timeline value the deterministic parsers cannot read. Provider errors abort
// the extraction; values that cannot be parsed are dropped.
func (e *Extractor) Extract(ctx context.Context, req Request) (model.PartialBantUpdate, error) {
	var upd model.PartialBantUpdate

	res, err := e.gw.Invoke(ctx, llm.Invocation{
		Operation: model.OpBANTExtraction,
		System:    extractionSystemPrompt,
		Prompt:    extractionPrompt(req),
		History:   req.History,
		Scope:     req.Scope,
	})
	if err != nil {
		return upd, err
	}

	var raw rawExtraction
	if err := decodeJSON(res.Text, &raw); err != nil {
		e.log.Debug("bant extraction answer unparseable", zap.Error(err))
	}

	if IsNoise(req.Message) {
		return upd, nil
	}

	if err := e.budget(ctx, req, asString(raw.Budget), &upd); err != nil {
		return model.PartialBantUpdate{}, err
	}
	e.authority(req, asString(raw.Authority), &upd)
	e.need(req, asString(raw.Need), &upd)
	if err := e.timeline(ctx, req, asString(raw.Timeline), &upd); err != nil {
		return model.PartialBantUpdate{}, err
	}

	contact := Contact{
		Name:  cleanName(asString(raw.ContactName)),
		Phone: normalizePhone(asString(raw.ContactPhone)),
		Email: strings.ToLower(emailRE.FindString(asString(raw.ContactEmail))),
	}
	if req.targetsContact() {
		found, err := e.contact(ctx, req)
		if err != nil {
			return model.PartialBantUpdate{}, err
		}
		contact = mergeContact(found, contact)
	}
	setContact(&upd, contact)

	upd.Revisions = revisions(req, raw.Revised, upd)
	return upd, nil
}

func (e *Extractor) budget(ctx context.Context, req Request, raw string, upd *model.PartialBantUpdate) error {
	if raw != "" {
		if m, ok := ParseMoney(raw, req.Currency); ok {
			upd.Budget = &m
			return nil
		}
	}
	if m, ok := FindMoney(req.Message, req.Currency); ok {
		upd.Budget = &m
		return nil
	}
	// A plain number answering the budget question, like "25000000".
	if req.Stage == model.StageAwaitingBudget && raw == "" && isBareAmount(req.Message) {
		if m, ok := ParseMoney(req.Message, req.Currency); ok {
			upd.Budget = &m
			return nil
		}
	}
	if raw == "" {
		return nil
	}

	m, err := e.normalizeBudget(ctx, req, raw)
	if errors.Is(err, ErrAmbiguous) {
		e.log.Debug("budget dropped", zap.String("raw", raw))
		return nil
	}
	if err != nil {
		return err
	}
	upd.Budget = &m
	return nil
}

func (e *Extractor) normalizeBudget(ctx context.Context, req Request, raw string) (model.Money, error) {
	res, err := e.gw.Invoke(ctx, llm.Invocation{
		Operation: model.OpBANTNormalization,
		System:    budgetNormalizationPrompt,
		Prompt:    raw,
		Scope:     req.Scope,
	})
	if err != nil {
		return model.Money{}, err
	}
	var out struct {
		Amount   any `json:"amount"`
		Currency any `json:"currency"`
	}
	if err := decodeJSON(res.Text, &out); err != nil {
		return model.Money{}, fmt.Errorf("%w: %v", ErrAmbiguous, err)
	}
	amount, err := strconv.ParseFloat(strings.ReplaceAll(asString(out.Amount), ",", ""), 64)
	if err != nil || amount <= 0 {
		return model.Money{}, ErrAmbiguous
	}
	currency := strings.ToUpper(asString(out.Currency))
	if len(currency) != 3 {
		currency = detectCurrency(raw)
	}
	if currency == "" {
		currency = req.Currency
	}
	return model.MoneyFromMajor(amount, currency), nil
}

func (e *Extractor) authority(req Request, raw string, upd *model.PartialBantUpdate) {
	if raw != "" {
		if a, ok := ParseAuthority(raw); ok {
			upd.Authority = &a
			return
		}
	}
	// Outside the authority question only explicit decision talk counts.
	if req.Stage != model.StageAwaitingAuthority && !decisionTalkRE.MatchString(req.Message) {
		return
	}
	if a, ok := ParseAuthority(req.Message); ok {
		upd.Authority = &a
	}
}

var timingCueRE = regexp.MustCompile(`(?i)\b(?:in|within|next|by|before|asap|immediately|right away|this year)\b`)

var decisionTalkRE = regexp.MustCompile(`(?i)\b(?:decid\w*|decision\w*|sole|jointly|sign(?:s|ing)?)\b`)

func (e *Extractor) need(req Request, raw string, upd *model.PartialBantUpdate) {
	if raw != "" {
		if n := NormalizeNeed(raw); n != "" {
			upd.Need = &n
			return
		}
	}
	if req.Stage != model.StageAwaitingNeed || strings.Contains(req.Message, "?") {
		return
	}
	// Without the model's answer only a known category counts, like "residency".
	if n := NeedCategory(req.Message); n != "" {
		upd.Need = &n
	}
}

func (e *Extractor) timeline(ctx context.Context, req Request, raw string, upd *model.PartialBantUpdate) error {
	if raw != "" {
		if t, ok := ParseTimeline(raw); ok {
			upd.Timeline = &t
			return nil
		}
	}
	if req.Stage == model.StageAwaitingTimeline || timingCueRE.MatchString(req.Message) {
		if t, ok := ParseTimeline(req.Message); ok {
			upd.Timeline = &t
			return nil
		}
	}
	if raw == "" {
		return nil
	}

	res, err := e.gw.Invoke(ctx, llm.Invocation{
		Operation: model.OpBANTNormalization,
		System:    timelineNormalizationPrompt,
		Prompt:    raw,
		Scope:     req.Scope,
	})
	if err != nil {
		return err
	}
	var out struct {
		Amount any `json:"amount"`
		Unit   any `json:"unit"`
	}
	if err := decodeJSON(res.Text, &out); err != nil {
		e.log.Debug("timeline dropped", zap.String("raw", raw), zap.Error(err))
		return nil
	}
	amount, err := strconv.Atoi(asString(out.Amount))
	if err != nil || amount <= 0 {
		return nil
	}
	t := model.Timeline{Amount: amount, Unit: unitOf(asString(out.Unit))}
	upd.Timeline = &t
	return nil
}

func (e *Extractor) contact(ctx context.Context, req Request) (Contact, error) {
	found := ExtractContact(req.Message)
	var bare string
	if found.Name == "" && req.Current.ContactName == "" {
		bare = ExtractName(req.Message)
	}

	res, err := e.gw.Invoke(ctx, llm.Invocation{
		Operation: model.OpContactExtraction,
		System:    contactSystemPrompt,
		Prompt:    req.Message,
		History:   req.History,
		Scope:     req.Scope,
	})
	if err != nil {
		return Contact{}, err
	}

	var raw rawContact
	if err := decodeJSON(res.Text, &raw); err != nil {
		e.log.Debug("contact extraction answer unparseable", zap.Error(err))
	}
	fromModel := Contact{
		Name:  cleanName(asString(raw.Name)),
		Phone: normalizePhone(asString(raw.Phone)),
		Email: strings.ToLower(emailRE.FindString(asString(raw.Email))),
	}
	// A lone name is taken when it has at least two words or the model read
	// the same name.
	if bare != "" && (len(strings.Fields(bare)) >= 2 || strings.EqualFold(bare, fromModel.Name)) {
		found.Name = bare
	}
	return mergeContact(found, fromModel), nil
}

// mergeContact prefers the first contact's values and fills gaps from the
// second.
func mergeContact(a, b Contact) Contact {
	if a.Name == "" {
		a.Name = b.Name
	}
	if a.Phone == "" {
		a.Phone = b.Phone
	}
	if a.Email == "" {
		a.Email = b.Email
	}
	return a
}

func setContact(upd *model.PartialBantUpdate, c Contact) {
	if c.Name != "" {
		upd.ContactName = &c.Name
	}
	if c.Phone != "" {
		upd.ContactPhone = &c.Phone
	}
	if c.Email != "" {
		upd.ContactEmail = &c.Email
	}
}

// revisions flags fields the buyer explicitly changed: either the model listed
// them or the message carries a correction cue. Only fields present in the
// update and already populated can be revisions.
func revisions(req Request, listed []string, upd model.PartialBantUpdate) model.FieldSet {
	touched := upd.Fields()
	var out model.FieldSet
	for _, name := range listed {
		var f model.Field
		if err := f.UnmarshalText([]byte(name)); err == nil && touched.Has(f) {
			out = out.With(f)
		}
	}
	if revisionCueRE.MatchString(req.Message) {
		for _, f := range touched.Fields() {
			if req.Current.Has(f) || (f == model.FieldContact && req.Current.HasAnyContact()) {
				out = out.With(f)
			}
		}
	}
	return out
}

func extractionPrompt(req Request) string {
	var b strings.Builder
	if f, ok := req.Stage.Field(); ok {
		fmt.Fprintf(&b, "The buyer was just asked about: %s.\n", f)
	}
	if req.Currency != "" {
		fmt.Fprintf(&b, "Default currency: %s.\n", req.Currency)
	}
	b.WriteString("Message: ")
	b.WriteString(req.Message)
	return b.String()
}

// decodeJSON reads the first JSON object in a model answer, tolerating code
// fences and surrounding prose.
func decodeJSON(text string, v any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return fmt.Errorf("no JSON object in answer")
	}
	return json.Unmarshal([]byte(text[start:end+1]), v)
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		s := strings.TrimSpace(t)
		if strings.EqualFold(s, "null") || strings.EqualFold(s, "none") || strings.EqualFold(s, "n/a") {
			return ""
		}
		return s
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
