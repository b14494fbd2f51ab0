// Package httpserver exposes Twilio webhooks, the run API and operational endpoints over echo.
package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/chadiek/patient-qa/internal/dialogue"
	"github.com/chadiek/patient-qa/internal/domain"
	twiliomw "github.com/chadiek/patient-qa/internal/middleware"
	"github.com/chadiek/patient-qa/internal/orchestrator"
	"github.com/chadiek/patient-qa/internal/telephony"
)

// Dialogue answers telephony events for a call.
type Dialogue interface {
	HandleEvent(ctx context.Context, callID string, ev dialogue.Event) dialogue.Response
}

// Runner starts batch runs and reports their progress.
type Runner interface {
	Start(ctx context.Context, patient domain.Patient, scenarios []domain.Scenario) (orchestrator.RunSnapshot, error)
	Snapshot() orchestrator.RunSnapshot
	Subscribe() (<-chan orchestrator.RunSnapshot, func())
}

// Patients is the identity registry.
type Patients interface {
	RegisterPatient(ctx context.Context, p domain.Patient) (domain.Patient, error)
	ListPatients(ctx context.Context) ([]domain.Patient, error)
	ActivePatient(ctx context.Context) (domain.Patient, error)
	DeletePatient(ctx context.Context, id uint) error
}

// Scenarios is the read-only scenario catalog.
type Scenarios interface {
	All() []domain.Scenario
	Get(id string) (domain.Scenario, error)
}

// Deps are the collaborators behind the routes.
type Deps struct {
	Dialogue  Dialogue
	Runner    Runner
	Patients  Patients
	Scenarios Scenarios
	Twilio    twiliomw.TwilioConfig
	Routes    telephony.Routes
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// New creates a configured Echo server instance with every route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	if d.Routes == (telephony.Routes{}) {
		d.Routes = telephony.DefaultRoutes
	}

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics))
	}

	w := webhooks{dialogue: d.Dialogue, routes: d.Routes}
	signed := twiliomw.TwilioAuth(d.Twilio)
	e.POST(telephony.PathVoice, w.voice, signed)
	e.POST(telephony.PathGather, w.gather, signed)
	e.POST(telephony.PathGatherTimeout, w.gatherTimeout, signed)
	e.POST(telephony.PathStatus, w.status, signed)

	a := api{runner: d.Runner, patients: d.Patients, scenarios: d.Scenarios}
	e.GET("/api/status", a.status)
	e.GET("/api/status/ws", a.statusStream)
	e.GET("/api/scenarios", a.listScenarios)
	e.POST("/api/simulate", a.simulateAll)
	e.POST("/api/simulate/:id", a.simulateOne)
	e.GET("/api/patients", a.listPatients)
	e.POST("/api/patients", a.registerPatient)
	e.DELETE("/api/patients/:id", a.deletePatient)
	return e
}
