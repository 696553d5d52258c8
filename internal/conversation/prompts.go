package conversation

import (
	"fmt"
	"strings"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/knowledge"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/model"
)

const replySystemPrompt = `You are a friendly real-estate sales assistant chatting with a prospective buyer.
Keep replies short (at most three sentences) and never invent prices or availability.
Follow the directive exactly; when it contains a question, end your reply with that question.`

// questions are asked while waiting on each stage. They double as the canned
// reply when the chat_reply call fails.
var questions = map[model.Stage]string{
	model.StageGreeting:          "Hi! I can help you find the right property. What are you looking for?",
	model.StageAwaitingBudget:    "To point you to the right properties, what budget do you have in mind?",
	model.StageAwaitingAuthority: "Will you be making the buying decision yourself, or together with someone else?",
	model.StageAwaitingNeed:      "What will the property be for: your own home, an investment, or something else?",
	model.StageAwaitingTimeline:  "When are you planning to buy?",
	model.StageAwaitingContact:   "Could you share your name and a phone number or email so one of our agents can reach you?",
	model.StageQualified:         "Thank you! One of our agents will get in touch with you shortly.",
	model.StageHandedOff:         "I'm connecting you with one of our agents now. They will reply here shortly.",
}

// Question returns the prompt for a stage.
func Question(s model.Stage) string {
	if q, ok := questions[s]; ok {
		return q
	}
	return questions[model.StageGreeting]
}

type directive struct {
	text     string
	fallback string
}

func buildDirective(in replyInput) directive {
	q := Question(in.ask)
	var b strings.Builder

	switch {
	case in.intent == model.IntentHandoffRequest:
		b.WriteString("The buyer asked for a human agent. Confirm that an agent will take over.")
		if in.stage != model.StageHandedOff {
			b.WriteString(" " + q)
		}
		return directive{text: b.String(), fallback: questions[model.StageHandedOff]}

	case in.qualifiedNow:
		fmt.Fprintf(&b, "The buyer is now fully qualified (%s lead). Thank them and say an agent will follow up.", in.tier)
		return directive{text: b.String(), fallback: q}

	case in.stage.IsTerminal():
		b.WriteString("The qualification is finished. Answer the buyer helpfully without asking qualification questions.")
		writePassages(&b, in.passages)
		return directive{text: b.String(), fallback: q}

	case in.intent == model.IntentInformational:
		b.WriteString("Answer the buyer's question using only the reference material below. If it is not covered, say an agent will confirm.")
		writePassages(&b, in.passages)
		fmt.Fprintf(&b, "\nThen ask: %s", q)
		return directive{text: b.String(), fallback: "Good question, one of our agents will confirm the details. " + q}

	case in.intent == model.IntentEstimation:
		b.WriteString("Give only a rough, clearly non-binding payment estimate")
		if in.bant.Budget != nil {
			fmt.Fprintf(&b, " based on the buyer's budget of %s", in.bant.Budget)
		}
		fmt.Fprintf(&b, ". Then ask: %s", q)
		return directive{text: b.String(), fallback: "An agent can prepare an exact computation for you. " + q}

	case in.intent == model.IntentQualification && in.changed.Empty() && in.from == in.stage && in.stage.IsMidFlow():
		fmt.Fprintf(&b, "The buyer's answer did not tell us what we need. Politely ask again: %s", q)
		return directive{text: b.String(), fallback: "Sorry, I didn't quite get that. " + q}

	default:
		if !in.changed.Empty() {
			b.WriteString("Briefly acknowledge what the buyer told you. ")
		}
		fmt.Fprintf(&b, "Ask: %s", q)
		return directive{text: b.String(), fallback: q}
	}
}

func writePassages(b *strings.Builder, passages []knowledge.Passage) {
	if len(passages) == 0 {
		return
	}
	b.WriteString("\nReference material:")
	for _, p := range passages {
		fmt.Fprintf(b, "\n- %s: %s", p.Title, p.Content)
	}
}
