package agent

import "fmt"

// Kind separates "say nothing and keep listening" from a spoken reply.
type Kind int

const (
	Silence Kind = iota
	Utterance
)

// Tier names the pipeline stage that produced a reply.
type Tier string

const (
	TierIdentityGate Tier = "identity_gate"
	TierDisclosure   Tier = "disclosure"
	TierHold         Tier = "hold"
	TierGenerative   Tier = "generative"
	TierFallback     Tier = "fallback"
)

// Reply is the engine's decision for one agent utterance.
type Reply struct {
	Kind Kind
	Text string
	// Done is set when the simulated patient considers its goal resolved.
	Done bool
	Tier Tier
}

// IsSilence reports whether nothing should be spoken.
func (r Reply) IsSilence() bool { return r.Kind == Silence }

func (r Reply) String() string {
	if r.IsSilence() {
		return fmt.Sprintf("silence(%s)", r.Tier)
	}
	return fmt.Sprintf("utterance(%s, done=%v): %q", r.Tier, r.Done, r.Text)
}

func silence(t Tier) Reply { return Reply{Kind: Silence, Tier: t} }

func say(t Tier, text string, done bool) Reply {
	return Reply{Kind: Utterance, Text: text, Done: done, Tier: t}
}
