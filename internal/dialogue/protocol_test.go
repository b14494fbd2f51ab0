package dialogue

import (
	"context"
	"sync"
	"testing"

	"github.com/chadiek/patient-qa/internal/agent"
	"github.com/chadiek/patient-qa/internal/domain"
	"github.com/chadiek/patient-qa/internal/session"
	"github.com/chadiek/patient-qa/internal/transcript"
)

type stubResponder struct {
	mu    sync.Mutex
	reply agent.Reply
	calls int
}

func (s *stubResponder) Respond(context.Context, agent.Turn) agent.Reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.reply
}

type countingRecorder struct {
	mu    sync.Mutex
	saves int
	last  []domain.Turn
	snap  session.Snapshot
}

func (r *countingRecorder) Save(_ context.Context, snap session.Snapshot, turns []domain.Turn) (transcript.Files, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	r.last = turns
	r.snap = snap
	return transcript.Files{}, nil
}

const callID = "CA123"

func newProtocol(t *testing.T, reply agent.Reply, cfg Config) (*Protocol, *session.Store, *stubResponder, *countingRecorder) {
	t.Helper()
	store := session.NewStore()
	err := store.Create(callID,
		domain.Scenario{ID: "01_happy_path", Name: "Happy Path", Goal: "Book a checkup"},
		domain.Patient{FullName: "Felix Navarro", DOB: "March 3, 1988"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	resp := &stubResponder{reply: reply}
	rec := &countingRecorder{}
	return New(store, resp, rec, cfg, Hooks{}), store, resp, rec
}

func speak(text string) agent.Reply { return agent.Reply{Kind: agent.Utterance, Text: text, Tier: agent.TierGenerative} }

func TestConnected(t *testing.T) {
	p, _, _, _ := newProtocol(t, speak("hi"), Config{})
	if got := p.HandleEvent(context.Background(), callID, Connected()); got.Action != ActionListen || got.Text != "" {
		t.Fatalf("connected should only listen, got %+v", got)
	}
	if p.State(callID) != StateListening {
		t.Fatalf("state = %s", p.State(callID))
	}

	got := p.HandleEvent(context.Background(), "CA-unknown", Connected())
	if got.Action != ActionSpeakHangup || got.Text != UnknownCallGoodbye {
		t.Fatalf("unknown call should apologise and hang up, got %+v", got)
	}
}

func TestSpeech_SpeakAndListen(t *testing.T) {
	p, store, _, rec := newProtocol(t, speak("Yes, that's me."), Config{})
	got := p.HandleEvent(context.Background(), callID, SpeechRecognized("Am I speaking with Felix?"))
	if got.Action != ActionSpeakListen || got.Text != "Yes, that's me." {
		t.Fatalf("unexpected response %+v", got)
	}
	hist := store.History(callID)
	if len(hist) != 2 || hist[0].Role != domain.RoleAgent || hist[1].Role != domain.RolePatient {
		t.Fatalf("unexpected history %+v", hist)
	}
	if p.State(callID) != StateGather {
		t.Fatalf("state = %s", p.State(callID))
	}
	if rec.saves != 0 {
		t.Fatalf("no save expected mid-call")
	}
}

func TestSpeech_SilenceListens(t *testing.T) {
	p, store, _, _ := newProtocol(t, agent.Reply{Kind: agent.Silence, Tier: agent.TierDisclosure}, Config{})
	got := p.HandleEvent(context.Background(), callID, SpeechRecognized("This call may be recorded."))
	if got.Action != ActionListen {
		t.Fatalf("silence should listen, got %+v", got)
	}
	if hist := store.History(callID); len(hist) != 1 {
		t.Fatalf("only the agent turn should be recorded, got %+v", hist)
	}
}

func TestSpeech_DoneHangsUpAndSaves(t *testing.T) {
	reply := speak("No, that's all. Thank you.")
	reply.Done = true
	p, store, _, rec := newProtocol(t, reply, Config{})
	got := p.HandleEvent(context.Background(), callID, SpeechRecognized("Is there anything else?"))
	if got.Action != ActionSpeakHangup || got.Text != reply.Text {
		t.Fatalf("unexpected response %+v", got)
	}
	if !store.IsComplete(callID) || rec.saves != 1 {
		t.Fatalf("complete=%v saves=%d", store.IsComplete(callID), rec.saves)
	}
	if rec.snap.ScenarioID != "01_happy_path" || rec.snap.TurnCount != 2 {
		t.Fatalf("unexpected snapshot %+v", rec.snap)
	}
	if p.State(callID) != StateTerminated {
		t.Fatalf("state = %s", p.State(callID))
	}
}

func TestTurnCapSkipsResponder(t *testing.T) {
	p, store, resp, rec := newProtocol(t, speak("Okay."), Config{MaxTurns: 3})
	ctx := context.Background()
	p.HandleEvent(ctx, callID, SpeechRecognized("one"))
	p.HandleEvent(ctx, callID, SpeechRecognized("two"))
	got := p.HandleEvent(ctx, callID, SpeechRecognized("three"))
	if got.Action != ActionSpeakHangup || got.Text != TurnCapFarewell {
		t.Fatalf("expected turn-cap farewell, got %+v", got)
	}
	if resp.calls != 2 {
		t.Fatalf("responder must not run on the capped turn; calls=%d", resp.calls)
	}
	hist := store.History(callID)
	if last := hist[len(hist)-1]; last.Role != domain.RolePatient || last.Text != TurnCapFarewell {
		t.Fatalf("farewell not recorded: %+v", last)
	}
	if rec.saves != 1 {
		t.Fatalf("saves = %d", rec.saves)
	}
}

func TestNoInputLimit(t *testing.T) {
	p, store, resp, rec := newProtocol(t, speak("unused"), Config{})
	ctx := context.Background()
	p.HandleEvent(ctx, callID, SpeechRecognized("Hello, how can I help?"))

	for i := 0; i < DefaultMaxEmpty-1; i++ {
		var got Response
		if i%2 == 0 {
			got = p.HandleEvent(ctx, callID, SpeechRecognized("   "))
		} else {
			got = p.HandleEvent(ctx, callID, GatherTimedOut())
		}
		if got.Action != ActionSpeakListen {
			t.Fatalf("empty #%d should re-prompt, got %+v", i+1, got)
		}
	}
	got := p.HandleEvent(ctx, callID, SpeechRecognized(""))
	if got.Action != ActionSpeakHangup || got.Text != NoSpeechFarewell {
		t.Fatalf("expected apology hangup, got %+v", got)
	}
	if !store.IsComplete(callID) || rec.saves != 1 {
		t.Fatalf("complete=%v saves=%d", store.IsComplete(callID), rec.saves)
	}
	if resp.calls != 1 {
		t.Fatalf("empty input must not reach the responder; calls=%d", resp.calls)
	}
}

func TestGatherTimeoutFarewell(t *testing.T) {
	p, _, _, _ := newProtocol(t, speak("unused"), Config{MaxEmpty: 1})
	got := p.HandleEvent(context.Background(), callID, GatherTimedOut())
	if got.Action != ActionSpeakHangup || got.Text != TimeoutFarewell {
		t.Fatalf("unexpected response %+v", got)
	}
}

func TestSpeechResetsEmptyCounter(t *testing.T) {
	p, store, _, _ := newProtocol(t, speak("Okay."), Config{MaxEmpty: 2})
	ctx := context.Background()
	p.HandleEvent(ctx, callID, GatherTimedOut())
	p.HandleEvent(ctx, callID, SpeechRecognized("Are you there?"))
	if got := p.HandleEvent(ctx, callID, GatherTimedOut()); got.Action != ActionSpeakListen {
		t.Fatalf("counter should have reset, got %+v", got)
	}
	if store.IsComplete(callID) {
		t.Fatalf("call should still be live")
	}
}

func TestStatusCompletedFinalizes(t *testing.T) {
	p, store, _, rec := newProtocol(t, speak("Yes."), Config{})
	ctx := context.Background()
	p.HandleEvent(ctx, callID, SpeechRecognized("Is this Felix?"))

	if got := p.HandleEvent(ctx, callID, StatusChanged("in-progress")); got.Action != ActionNoContent || store.IsComplete(callID) {
		t.Fatalf("non-terminal status must not finalize")
	}
	p.HandleEvent(ctx, callID, StatusChanged("completed"))
	p.HandleEvent(ctx, callID, StatusChanged("completed"))
	if !store.IsComplete(callID) || rec.saves != 1 {
		t.Fatalf("complete=%v saves=%d", store.IsComplete(callID), rec.saves)
	}
}

func TestTerminatedIsAbsorbing(t *testing.T) {
	p, store, resp, _ := newProtocol(t, speak("Yes."), Config{})
	ctx := context.Background()
	p.Finalize(ctx, callID, ReasonRemoteHangup)

	for _, ev := range []Event{Connected(), SpeechRecognized("Hello?"), GatherTimedOut()} {
		if got := p.HandleEvent(ctx, callID, ev); got.Action != ActionSpeakHangup || got.Text != "" {
			t.Fatalf("event %d after termination: %+v", ev.Type, got)
		}
	}
	if resp.calls != 0 || len(store.History(callID)) != 0 {
		t.Fatalf("terminated call must not change")
	}
}

// hangupResponder ends the call while its reply is still being produced.
type hangupResponder struct {
	p *Protocol
}

func (h *hangupResponder) Respond(ctx context.Context, _ agent.Turn) agent.Reply {
	h.p.HandleEvent(ctx, callID, StatusChanged("completed"))
	return speak("Yes, that's me.")
}

func TestRemoteHangupDuringReplyKeepsTranscript(t *testing.T) {
	p, store, _, rec := newProtocol(t, speak("unused"), Config{})
	p.responder = &hangupResponder{p: p}
	ctx := context.Background()

	got := p.HandleEvent(ctx, callID, SpeechRecognized("Am I speaking with Felix?"))
	if got.Action != ActionSpeakHangup || got.Text != "" {
		t.Fatalf("expected silent hangup, got %+v", got)
	}
	if store.AppendTurn(callID, domain.RolePatient, "late reply") {
		t.Fatalf("completed call accepted a turn")
	}
	hist := store.History(callID)
	if len(hist) != 1 || hist[0].Role != domain.RoleAgent {
		t.Fatalf("only the agent turn should be kept, got %+v", hist)
	}
	if rec.saves != 1 || len(rec.last) != 1 {
		t.Fatalf("saves=%d saved turns=%d", rec.saves, len(rec.last))
	}
}

func TestFinalizeExactlyOnceConcurrent(t *testing.T) {
	p, _, _, rec := newProtocol(t, speak("Yes."), Config{})
	ctx := context.Background()
	p.HandleEvent(ctx, callID, SpeechRecognized("Is this Felix?"))

	var wg sync.WaitGroup
	wins := make(chan bool, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wins <- p.Finalize(ctx, callID, ReasonRemoteHangup)
		}()
	}
	wg.Wait()
	close(wins)
	n := 0
	for w := range wins {
		if w {
			n++
		}
	}
	if n != 1 || rec.saves != 1 {
		t.Fatalf("winners=%d saves=%d", n, rec.saves)
	}
}

func TestFinalizeEmptyHistorySkipsSave(t *testing.T) {
	var reasons []string
	p, store, _, rec := newProtocol(t, speak("Yes."), Config{})
	p.hooks.OnFinalize = func(_, reason string) { reasons = append(reasons, reason) }
	p.HandleEvent(context.Background(), callID, StatusChanged("no-answer"))
	if !store.IsComplete(callID) || rec.saves != 0 {
		t.Fatalf("complete=%v saves=%d", store.IsComplete(callID), rec.saves)
	}
	if len(reasons) != 1 || reasons[0] != ReasonRemoteHangup {
		t.Fatalf("reasons = %v", reasons)
	}
}

func TestIsTerminalStatus(t *testing.T) {
	for status, want := range map[string]bool{
		"completed": true, "busy": true, "failed": true, "no-answer": true, "canceled": true,
		"ringing": false, "in-progress": false, "": false, "Completed": true,
	} {
		if got := IsTerminalStatus(status); got != want {
			t.Errorf("IsTerminalStatus(%q) = %v", status, got)
		}
	}
}

type blockingRecorder struct {
	release chan struct{}
	saved   chan struct{}
}

func (b *blockingRecorder) Save(context.Context, session.Snapshot, []domain.Turn) (transcript.Files, error) {
	<-b.release
	close(b.saved)
	return transcript.Files{}, nil
}

func TestDrainWaitsForPersistence(t *testing.T) {
	store := session.NewStore()
	if err := store.Create(callID, domain.Scenario{ID: "s"}, domain.Patient{FullName: "Felix Navarro"}); err != nil {
		t.Fatal(err)
	}
	store.AppendTurn(callID, domain.RoleAgent, "Hello?")
	rec := &blockingRecorder{release: make(chan struct{}), saved: make(chan struct{})}
	p := New(store, &stubResponder{}, rec, Config{}, Hooks{})

	go p.Finalize(context.Background(), callID, ReasonRemoteHangup)
	<-store.Done(callID)

	drained := make(chan error, 1)
	go func() { drained <- p.Drain(context.Background()) }()
	select {
	case <-drained:
		t.Fatalf("drain returned before the transcript was saved")
	default:
	}
	close(rec.release)
	if err := <-drained; err != nil {
		t.Fatalf("drain: %v", err)
	}
	select {
	case <-rec.saved:
	default:
		t.Fatalf("save did not finish before drain returned")
	}
}
