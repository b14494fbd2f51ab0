package telephony

import (
	"fmt"
	"strconv"

	"github.com/twilio/twilio-go/twiml"

	"github.com/chadiek/patient-qa/internal/dialogue"
)

const (
	Voice    = "Polly.Joanna"
	Language = "en-US"

	gatherTimeoutSeconds = 8
)

// Routes are the webhook targets written into rendered TwiML.
type Routes struct {
	Gather        string
	GatherTimeout string
}

// DefaultRoutes are relative paths; Twilio resolves them against the current request URL.
var DefaultRoutes = Routes{Gather: PathGather, GatherTimeout: PathGatherTimeout}

// RenderTwiML turns a protocol response into a TwiML document.
func RenderTwiML(resp dialogue.Response, routes Routes) (string, error) {
	var verbs []twiml.Element
	switch resp.Action {
	case dialogue.ActionListen:
		verbs = listen(routes)
	case dialogue.ActionSpeakListen:
		verbs = append([]twiml.Element{say(resp.Text)}, listen(routes)...)
	case dialogue.ActionSpeakHangup:
		if resp.Text != "" {
			verbs = append(verbs, say(resp.Text))
		}
		verbs = append(verbs, &twiml.VoiceHangup{})
	case dialogue.ActionNoContent:
		// An empty <Response/> acknowledges callbacks without affecting the call.
	default:
		return "", fmt.Errorf("unknown dialogue action %d", resp.Action)
	}
	return twiml.Voice(verbs)
}

func say(text string) twiml.Element {
	return &twiml.VoiceSay{Message: text, Voice: Voice, Language: Language}
}

// listen opens a speech gather and falls through to the timeout webhook when nothing is heard.
func listen(routes Routes) []twiml.Element {
	gather := &twiml.VoiceGather{
		Input:         "speech",
		Action:        routes.Gather,
		Method:        "POST",
		Timeout:       strconv.Itoa(gatherTimeoutSeconds),
		SpeechTimeout: "auto",
		SpeechModel:   "phone_call",
		Enhanced:      "true",
		Language:      Language,
	}
	redirect := &twiml.VoiceRedirect{Url: routes.GatherTimeout, Method: "POST"}
	return []twiml.Element{gather, redirect}
}
