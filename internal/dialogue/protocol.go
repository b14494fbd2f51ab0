// Package dialogue drives one simulated call turn by turn from telephony webhook events.
package dialogue

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/chadiek/patient-qa/internal/agent"
	"github.com/chadiek/patient-qa/internal/domain"
	"github.com/chadiek/patient-qa/internal/session"
	"github.com/chadiek/patient-qa/internal/transcript"
)

const (
	DefaultMaxTurns = 15
	DefaultMaxEmpty = 5

	persistTimeout = 20 * time.Second
)

// Fixed utterances spoken by the protocol itself.
const (
	TurnCapFarewell      = "Thank you so much for your help. I'll call back if I need anything. Goodbye."
	NoSpeechFarewell     = "I'm having trouble hearing you. Goodbye."
	TimeoutFarewell      = "I'll try calling again later. Goodbye."
	NoSpeechReprompt     = "Hello? I'm sorry, I didn't catch that. Could you repeat?"
	TimeoutReprompt      = "Hello? Are you still there?"
	UnknownCallGoodbye   = "I'm sorry, something went wrong. Goodbye."
	UnknownGatherGoodbye = "Goodbye."
)

// Finalization reasons.
const (
	ReasonTurnCap      = "turn_cap"
	ReasonNoInput      = "no_input"
	ReasonGoalComplete = "goal_complete"
	ReasonRemoteHangup = "remote_hangup"
)

// Responder produces the next patient reply.
type Responder interface {
	Respond(ctx context.Context, t agent.Turn) agent.Reply
}

// Recorder persists a finalized call.
type Recorder interface {
	Save(ctx context.Context, snap session.Snapshot, turns []domain.Turn) (transcript.Files, error)
}

// Hooks are optional observers.
type Hooks struct {
	OnFinalize func(callID, reason string)
	OnTurn     func(role domain.Role)
}

type Config struct {
	MaxTurns int
	MaxEmpty int
}

// Protocol is the per-call state machine. Call state lives in the session store;
// the protocol itself is stateless and safe for concurrent use across calls.
type Protocol struct {
	store     *session.Store
	responder Responder
	recorder  Recorder
	cfg       Config
	hooks     Hooks

	pending inflight
}

func New(store *session.Store, responder Responder, recorder Recorder, cfg Config, hooks Hooks) *Protocol {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.MaxEmpty <= 0 {
		cfg.MaxEmpty = DefaultMaxEmpty
	}
	return &Protocol{store: store, responder: responder, recorder: recorder, cfg: cfg, hooks: hooks}
}

// State derives the protocol state of a call from its session.
func (p *Protocol) State(callID string) State {
	sess, ok := p.store.Get(callID)
	if !ok || sess.Complete {
		return StateTerminated
	}
	if sess.AgentTurns == 0 {
		return StateListening
	}
	return StateGather
}

// HandleEvent advances the call and returns what the gateway should do next.
// Collaborator failures never surface here; every path yields a renderable response.
func (p *Protocol) HandleEvent(ctx context.Context, callID string, ev Event) Response {
	switch ev.Type {
	case EventConnected:
		return p.onConnected(callID)
	case EventSpeech:
		return p.onSpeech(ctx, callID, ev.Text)
	case EventGatherTimeout:
		return p.onGatherTimeout(ctx, callID)
	case EventStatus:
		return p.onStatus(ctx, callID, ev.Status)
	default:
		log.Printf("[dialogue] call=%s unknown event type %d", callID, ev.Type)
		return Listen()
	}
}

func (p *Protocol) onConnected(callID string) Response {
	sess, ok := p.store.Get(callID)
	if !ok {
		log.Printf("[dialogue] connected for unknown call %s", callID)
		return SpeakHangup(UnknownCallGoodbye)
	}
	if sess.Complete {
		return Hangup()
	}
	// The remote agent always speaks first.
	return Listen()
}

func (p *Protocol) onSpeech(ctx context.Context, callID, text string) Response {
	sess, ok := p.store.Get(callID)
	if !ok {
		return SpeakHangup(UnknownGatherGoodbye)
	}
	if sess.Complete {
		return Hangup()
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return p.noInput(ctx, callID, NoSpeechFarewell, NoSpeechReprompt)
	}

	if !p.store.AppendTurn(callID, domain.RoleAgent, text) {
		return Hangup()
	}
	p.turnObserved(domain.RoleAgent)

	sess, ok = p.store.Get(callID)
	if !ok {
		return SpeakHangup(UnknownGatherGoodbye)
	}
	if sess.AgentTurns >= p.cfg.MaxTurns {
		p.store.AppendTurn(callID, domain.RolePatient, TurnCapFarewell)
		p.turnObserved(domain.RolePatient)
		p.Finalize(ctx, callID, ReasonTurnCap)
		return SpeakHangup(TurnCapFarewell)
	}

	reply := p.responder.Respond(ctx, agent.Turn{
		Scenario:  sess.Scenario,
		Patient:   sess.Patient,
		History:   sess.Turns,
		AgentText: text,
	})

	// The far end may have hung up while the reply was being produced.
	if p.store.IsComplete(callID) {
		return Hangup()
	}
	if reply.IsSilence() {
		return Listen()
	}

	if !p.store.AppendTurn(callID, domain.RolePatient, reply.Text) {
		return Hangup()
	}
	p.turnObserved(domain.RolePatient)
	if reply.Done {
		p.Finalize(ctx, callID, ReasonGoalComplete)
		return SpeakHangup(reply.Text)
	}
	return SpeakListen(reply.Text)
}

func (p *Protocol) onGatherTimeout(ctx context.Context, callID string) Response {
	sess, ok := p.store.Get(callID)
	if !ok {
		return SpeakHangup(UnknownGatherGoodbye)
	}
	if sess.Complete {
		return Hangup()
	}
	return p.noInput(ctx, callID, TimeoutFarewell, TimeoutReprompt)
}

func (p *Protocol) noInput(ctx context.Context, callID, farewell, reprompt string) Response {
	n, err := p.store.RecordEmpty(callID)
	if errors.Is(err, session.ErrComplete) {
		return Hangup()
	}
	if err != nil {
		return SpeakHangup(UnknownGatherGoodbye)
	}
	if n >= p.cfg.MaxEmpty {
		p.Finalize(ctx, callID, ReasonNoInput)
		return SpeakHangup(farewell)
	}
	return SpeakListen(reprompt)
}

func (p *Protocol) onStatus(ctx context.Context, callID, status string) Response {
	if !IsTerminalStatus(status) {
		return NoContent()
	}
	if _, ok := p.store.Get(callID); ok && !p.store.IsComplete(callID) {
		log.Printf("[dialogue] call=%s ended remotely (status=%s); finalizing", callID, status)
		p.Finalize(ctx, callID, ReasonRemoteHangup)
	}
	return NoContent()
}

// Finalize marks the call complete and persists its transcript. Only the first
// caller for a given call does any work; later calls return false.
func (p *Protocol) Finalize(ctx context.Context, callID, reason string) bool {
	// Registered before completion is visible so Drain never misses this save.
	p.pending.add()
	defer p.pending.done()
	if !p.store.MarkComplete(callID) {
		return false
	}
	if p.hooks.OnFinalize != nil {
		p.hooks.OnFinalize(callID, reason)
	}

	snap, _ := p.store.Snapshot(callID)
	turns := p.store.History(callID)
	log.Printf("[dialogue] call=%s finalized reason=%s turns=%d", callID, reason, snap.TurnCount)
	if len(turns) == 0 || p.recorder == nil {
		return true
	}

	// Persistence outlives the webhook request that triggered it.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if _, err := p.recorder.Save(saveCtx, snap, turns); err != nil {
		log.Printf("[dialogue] call=%s transcript save failed: %v", callID, err)
	}
	return true
}

func (p *Protocol) turnObserved(role domain.Role) {
	if p.hooks.OnTurn != nil {
		p.hooks.OnTurn(role)
	}
}

// Drain blocks until every in-flight finalization has persisted or ctx ends.
func (p *Protocol) Drain(ctx context.Context) error {
	return p.pending.wait(ctx)
}

type inflight struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

func (f *inflight) add() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.n == 0 {
		f.idle = make(chan struct{})
	}
	f.n++
}

func (f *inflight) done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n--
	if f.n == 0 {
		close(f.idle)
	}
}

func (f *inflight) wait(ctx context.Context) error {
	f.mu.Lock()
	if f.n == 0 {
		f.mu.Unlock()
		return nil
	}
	idle := f.idle
	f.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
