// Package intent classifies each inbound message into one of the fixed
// conversation intents with a single model call.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/llm"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/model"
	"github.com/marwie0904/leadify-RE-APP-sub004/pkg/logger"
)

const (
	// StickyConfidence is the confidence an informational answer needs to
	// pull a mid-flow conversation out of qualification.
	StickyConfidence = 0.85

	// shortAnswerWords is the longest message treated as a direct answer to
	// the pending question.
	shortAnswerWords = 4
)

const systemPrompt = `Classify the buyer's latest message for a real-estate sales assistant.
Intents:
- qualification: answers about budget, decision authority, purpose, timeline or contact details
- estimation: asks for a price, payment or amortization estimate
- informational: asks about properties, locations, amenities or the company
- greeting: greetings, thanks or small talk
- handoff_request: asks to talk to a human agent
Return only JSON: {"intent": "<intent>", "confidence": <0..1>}`

// Invoker is the subset of the model gateway the router uses.
type Invoker interface {
	Invoke(ctx context.Context, inv llm.Invocation) (*llm.Result, error)
}

// Request is one classification.
type Request struct {
	Message string
	History []llm.ChatMessage
	Stage   model.Stage
	Scope   llm.Scope
}

// Classification is the routed intent.
type Classification struct {
	Intent     model.Intent
	Confidence float64
	// Raw is what the model answered before the sticky rule.
	Raw model.Intent
	// Sticky is set when the sticky rule overrode the model.
	Sticky bool
}

// Router classifies messages.
type Router struct {
	gw  Invoker
	log *logger.Logger
}

// NewRouter creates a router.
func NewRouter(gw Invoker, log *logger.Logger) *Router {
	if log == nil {
		log = logger.NewNop()
	}
	return &Router{gw: gw, log: log}
}

var handoffRE = regexp.MustCompile(`(?i)\b(?:(?:talk|speak|chat) (?:to|with) (?:a |an |the )?(?:human|person|real person|agent|broker|someone)|human agent|live agent|real person|call me back)\b`)

// Classify makes exactly one intent_classification call and applies the
// sticky-intent rule: mid-flow, a short answer or a low-confidence
// informational answer stays in qualification. Handoff requests are honored
// at any stage.
func (r *Router) Classify(ctx context.Context, req Request) (Classification, error) {
	res, err := r.gw.Invoke(ctx, llm.Invocation{
		Operation:   model.OpIntentClassification,
		System:      systemPrompt,
		Prompt:      prompt(req),
		History:     req.History,
		Scope:       req.Scope,
		MaxTokens:   64,
		Temperature: 0,
	})
	if err != nil {
		return Classification{}, err
	}

	c, ok := parse(res.Text)
	if !ok {
		r.log.Debug("intent answer unparseable", zap.String("answer", res.Text))
		c = Classification{Intent: model.IntentInformational}
		if req.Stage.IsMidFlow() {
			c.Intent = model.IntentQualification
		}
	}
	c.Raw = c.Intent

	if handoffRE.MatchString(req.Message) {
		c.Intent = model.IntentHandoffRequest
		return c, nil
	}
	if c.Intent == model.IntentHandoffRequest {
		return c, nil
	}

	if req.Stage.IsMidFlow() && c.Intent != model.IntentQualification && sticks(c, req.Message) {
		c.Intent = model.IntentQualification
		c.Sticky = true
	}
	return c, nil
}

func sticks(c Classification, message string) bool {
	if isShortAnswer(message) {
		return true
	}
	return c.Intent == model.IntentInformational && c.Confidence < StickyConfidence
}

func isShortAnswer(message string) bool {
	m := strings.TrimSpace(message)
	if m == "" || strings.Contains(m, "?") {
		return false
	}
	return len(strings.Fields(m)) <= shortAnswerWords
}

func prompt(req Request) string {
	var b strings.Builder
	if f, ok := req.Stage.Field(); ok {
		fmt.Fprintf(&b, "The assistant just asked the buyer about their %s.\n", f)
	}
	b.WriteString("Latest message: ")
	b.WriteString(req.Message)
	return b.String()
}

var labelRE = regexp.MustCompile(`(?i)\b(qualification|estimation|informational|greeting|handoff_request)\b`)

func parse(text string) (Classification, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		var out struct {
			Intent     string  `json:"intent"`
			Confidence float64 `json:"confidence"`
		}
		if err := json.Unmarshal([]byte(text[start:end+1]), &out); err == nil {
			i := model.Intent(strings.ToLower(strings.TrimSpace(out.Intent)))
			if i.Valid() {
				if out.Confidence <= 0 || out.Confidence > 1 {
					out.Confidence = 1
				}
				return Classification{Intent: i, Confidence: out.Confidence}, true
			}
		}
	}
	// Bare labels are accepted at full confidence.
	if m := labelRE.FindString(text); m != "" {
		return Classification{Intent: model.Intent(strings.ToLower(m)), Confidence: 1}, true
	}
	return Classification{}, false
}
