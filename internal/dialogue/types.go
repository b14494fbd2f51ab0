package dialogue

import "strings"

// State of a call in the protocol. Terminated is absorbing.
type State int

const (
	StateListening State = iota
	StateGather
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateGather:
		return "gather"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

type EventType int

const (
	EventConnected EventType = iota + 1
	EventSpeech
	EventGatherTimeout
	EventStatus
)

// Event is an inbound notification from the telephony gateway.
type Event struct {
	Type   EventType
	Text   string
	Status string
}

func Connected() Event { return Event{Type: EventConnected} }
func SpeechRecognized(text string) Event { return Event{Type: EventSpeech, Text: text} }
func GatherTimedOut() Event { return Event{Type: EventGatherTimeout} }
func StatusChanged(status string) Event { return Event{Type: EventStatus, Status: status} }

// IsTerminalStatus reports call statuses after which no more events arrive.
func IsTerminalStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "completed", "busy", "failed", "no-answer", "canceled":
		return true
	default:
		return false
	}
}

type Action int

const (
	// ActionListen opens a gather without speaking.
	ActionListen Action = iota + 1
	// ActionSpeakListen speaks Text then opens a gather.
	ActionSpeakListen
	// ActionSpeakHangup speaks Text, when set, then hangs up.
	ActionSpeakHangup
	// ActionNoContent acknowledges an out-of-band callback.
	ActionNoContent
)

// Response is the protocol's instruction back to the gateway.
type Response struct {
	Action Action
	Text   string
}

func Listen() Response { return Response{Action: ActionListen} }
func SpeakListen(text string) Response { return Response{Action: ActionSpeakListen, Text: text} }
func SpeakHangup(text string) Response { return Response{Action: ActionSpeakHangup, Text: text} }
func Hangup() Response { return Response{Action: ActionSpeakHangup} }
func NoContent() Response { return Response{Action: ActionNoContent} }

// Terminal reports whether the response ends the call.
func (r Response) Terminal() bool { return r.Action == ActionSpeakHangup }
