// Package classify turns a free-form chat message into an intent.
package classify

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/extract"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/logx"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/templates"
)

// Action is what the bot should do with a message.
type Action string

const (
	ActionDraft    Action = "mk_draft"
	ActionResearch Action = "research"
	ActionChat     Action = "chat"
	ActionAsk      Action = "ask"
)

// Fallback texts for incomplete model answers.
const (
	GenericQuestion = "Sorry, could you tell me a little more about what you need?"
	GenericReply    = "Sorry, I didn't quite get that. What can I help you with?"
)

// Intent is a classified message. Only the field matching Action is set.
type Intent struct {
	Action   Action
	Hint     string
	Topic    string
	Reply    string
	Question string
	// Err is the model error behind a fallback ask intent.
	Err error
}

// Classifier asks a small model for the intent.
type Classifier struct {
	gen    llm.Generator
	system string
	logger *logx.Logger
}

// New renders the routing prompt once.
func New(gen llm.Generator, prompts *templates.Renderer) (*Classifier, error) {
	system, err := prompts.Render(templates.ClassifySystem, nil)
	if err != nil {
		return nil, err
	}
	return &Classifier{gen: gen, system: system, logger: logx.NewLogger("classify")}, nil
}

// Classify never fails: a model error or an unusable answer becomes an ask
// intent with a generic question.
func (c *Classifier) Classify(ctx context.Context, text string) Intent {
	resp, err := c.gen.Generate(ctx, llm.Request{
		Step:   "classify",
		System: c.system,
		User:   text,
	})
	if err != nil {
		c.logger.Warn("intent classification failed: %v", err)
		return Intent{Action: ActionAsk, Question: GenericQuestion, Err: err}
	}
	return Parse(resp.Text)
}

// Parse reads the classifier's JSON answer.
func Parse(raw string) Intent {
	rec := extract.Object(raw, "")
	switch Action(strings.TrimSpace(rec.String("action"))) {
	case ActionDraft:
		return Intent{Action: ActionDraft, Hint: strings.TrimSpace(rec.String("hint"))}
	case ActionResearch:
		return Intent{Action: ActionResearch, Topic: strings.TrimSpace(rec.String("topic"))}
	case ActionChat:
		reply := strings.TrimSpace(rec.String("reply"))
		if reply == "" {
			reply = GenericReply
		}
		return Intent{Action: ActionChat, Reply: reply}
	case ActionAsk:
		q := strings.TrimSpace(rec.String("question"))
		if q == "" {
			q = GenericQuestion
		}
		return Intent{Action: ActionAsk, Question: q}
	default:
		return Intent{Action: ActionAsk, Question: GenericQuestion}
	}
}

// Clarified joins the original request with the user's answer for a second
// classification.
func Clarified(original, answer string) string {
	return "request: " + original + "\nadditional info: " + answer
}

var vagueTopics = map[string]struct{}{
	"リサーチ": {}, "調べて": {}, "調査": {}, "リサーチして": {},
	"調べ": {}, "調査して": {}, "リサーチしてほしい": {}, "調べてほしい": {},
}

var researchWords = []string{"リサーチ", "調べ", "調査"}

// IsVagueTopic reports whether topic is too unspecific to research: empty,
// the whole message echoed back, a bare "research" verb, or a short phrase
// that is mostly such a verb.
func IsVagueTopic(topic, message string) bool {
	topic = strings.TrimSpace(topic)
	if topic == "" || topic == strings.TrimSpace(message) {
		return true
	}
	if _, ok := vagueTopics[topic]; ok {
		return true
	}
	if utf8.RuneCountInString(topic) < 8 {
		for _, w := range researchWords {
			if strings.Contains(topic, w) {
				return true
			}
		}
	}
	return false
}
