// Package agent decides what the simulated patient says next.
package agent

import (
	"context"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/chadiek/patient-qa/internal/domain"
	"github.com/chadiek/patient-qa/internal/llm"
)

const (
	defaultTimeout     = 4 * time.Second
	defaultMaxTokens   = 120
	defaultTemperature = 0.7

	repeatFallback  = "Sorry, could you repeat that?"
	clarifyFallback = "Sorry, could you say that again?"
	goalFarewell    = "Okay, thank you."
)

var holdAcknowledgements = []string{
	"Sure, take your time.",
	"Okay, I'll wait.",
	"No problem, I'll hold on.",
	"Of course, take your time.",
	"Sure thing, I'm here.",
}

// Turn is the input to one engine decision.
type Turn struct {
	Scenario domain.Scenario
	Patient  domain.Patient
	// History is the full transcript so far; it may already end with AgentText.
	History   []domain.Turn
	AgentText string
}

func (t Turn) patientHasSpoken() bool {
	for _, h := range t.History {
		if h.Role == domain.RolePatient {
			return true
		}
	}
	return false
}

type rule struct {
	tier    Tier
	applies func(t Turn) bool
	reply   func(ctx context.Context, e *Engine, t Turn) Reply
}

// pipeline is evaluated in order; the first rule that applies decides the reply.
var pipeline = []rule{
	{
		tier: TierIdentityGate,
		applies: func(t Turn) bool {
			return !t.patientHasSpoken() && !IsIdentityCue(t.AgentText, t.Patient.FirstName())
		},
		reply: func(context.Context, *Engine, Turn) Reply { return silence(TierIdentityGate) },
	},
	{
		tier:    TierDisclosure,
		applies: func(t Turn) bool { return IsDisclosure(t.AgentText) },
		reply:   func(context.Context, *Engine, Turn) Reply { return silence(TierDisclosure) },
	},
	{
		tier:    TierHold,
		applies: func(t Turn) bool { return IsHold(t.AgentText) },
		reply: func(_ context.Context, e *Engine, _ Turn) Reply {
			return say(TierHold, e.pickHold(holdAcknowledgements), false)
		},
	},
	{
		tier:    TierGenerative,
		applies: func(Turn) bool { return true },
		reply:   func(ctx context.Context, e *Engine, t Turn) Reply { return e.generate(ctx, t) },
	},
}

// Engine is the tiered patient response pipeline.
type Engine struct {
	completer   llm.Completer
	model       string
	timeout     time.Duration
	maxTokens   int
	temperature float64
	pickHold    func([]string) string
	observe     func(Tier, time.Duration)
}

type Option func(*Engine)

// WithModel overrides the completer's default model for patient replies.
func WithModel(model string) Option {
	return func(e *Engine) { e.model = model }
}

// WithTimeout bounds each generative call.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithHoldPicker replaces the random hold acknowledgement choice.
func WithHoldPicker(pick func([]string) string) Option {
	return func(e *Engine) {
		if pick != nil {
			e.pickHold = pick
		}
	}
}

// WithObserver is called once per decision with the deciding tier and its latency.
func WithObserver(fn func(Tier, time.Duration)) Option {
	return func(e *Engine) { e.observe = fn }
}

func NewEngine(c llm.Completer, opts ...Option) *Engine {
	e := &Engine{
		completer:   c,
		timeout:     defaultTimeout,
		maxTokens:   defaultMaxTokens,
		temperature: defaultTemperature,
		pickHold:    func(choices []string) string { return choices[rand.Intn(len(choices))] },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Respond produces the next patient reply. It never returns an error: collaborator
// failures degrade to a canned utterance.
func (e *Engine) Respond(ctx context.Context, t Turn) Reply {
	start := time.Now()
	for _, r := range pipeline {
		if !r.applies(t) {
			continue
		}
		out := r.reply(ctx, e, t)
		if e.observe != nil {
			e.observe(out.Tier, time.Since(start))
		}
		return out
	}
	return silence(TierIdentityGate)
}

func (e *Engine) generate(ctx context.Context, t Turn) Reply {
	if e.completer == nil {
		return say(TierFallback, repeatFallback, false)
	}

	req := llm.Request{
		System:      buildSystemPrompt(t.Scenario, t.Patient, t.patientHasSpoken()),
		Messages:    conversationMessages(t.History, t.AgentText),
		MaxTokens:   e.maxTokens,
		Temperature: e.temperature,
		Timeout:     e.timeout,
		Model:       e.model,
	}
	raw, err := e.completer.Complete(ctx, req)
	if err != nil {
		log.Printf("[agent] completion failed, using fallback: %v", err)
		return say(TierFallback, repeatFallback, false)
	}
	if mentionsAI(raw) {
		log.Printf("[agent] discarded reply that broke character: %q", raw)
		return say(TierFallback, clarifyFallback, false)
	}

	done := strings.Contains(raw, CompletionMarker)
	text := strings.TrimSpace(strings.ReplaceAll(raw, CompletionMarker, ""))
	switch {
	case text == "" && done:
		return say(TierGenerative, goalFarewell, true)
	case text == "":
		return silence(TierGenerative)
	}
	return say(TierGenerative, text, done)
}

// conversationMessages maps agent turns to user messages and patient turns to
// assistant messages, ending with the latest agent utterance exactly once.
func conversationMessages(history []domain.Turn, agentText string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+1)
	for _, h := range history {
		if strings.TrimSpace(h.Text) == "" {
			continue
		}
		role := llm.RoleAssistant
		if h.Role == domain.RoleAgent {
			role = llm.RoleUser
		}
		msgs = append(msgs, llm.Message{Role: role, Content: h.Text})
	}
	if n := len(msgs); n == 0 || msgs[n-1].Role != llm.RoleUser || msgs[n-1].Content != agentText {
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: agentText})
	}
	return msgs
}
