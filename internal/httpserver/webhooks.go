package httpserver

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chadiek/patient-qa/internal/dialogue"
	twiliomw "github.com/chadiek/patient-qa/internal/middleware"
	"github.com/chadiek/patient-qa/internal/telephony"
)

type webhooks struct {
	dialogue Dialogue
	routes   telephony.Routes
}

func (h webhooks) voice(c echo.Context) error {
	return h.handle(c, dialogue.Connected())
}

func (h webhooks) gather(c echo.Context) error {
	return h.handle(c, dialogue.SpeechRecognized(twiliomw.Params(c)["SpeechResult"]))
}

func (h webhooks) gatherTimeout(c echo.Context) error {
	return h.handle(c, dialogue.GatherTimedOut())
}

func (h webhooks) status(c echo.Context) error {
	return h.handle(c, dialogue.StatusChanged(twiliomw.Params(c)["CallStatus"]))
}

func (h webhooks) handle(c echo.Context, ev dialogue.Event) error {
	callSid := twiliomw.Params(c)["CallSid"]
	if callSid == "" {
		return c.String(http.StatusBadRequest, "CallSid is required")
	}
	resp := h.dialogue.HandleEvent(c.Request().Context(), callSid, ev)
	doc, err := telephony.RenderTwiML(resp, h.routes)
	if err != nil {
		log.Printf("[http] render TwiML for %s: %v", callSid, err)
		return c.String(http.StatusInternalServerError, "failed to build TwiML")
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml")
	return c.String(http.StatusOK, doc)
}
