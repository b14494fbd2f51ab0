package httpserver

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/chadiek/patient-qa/internal/domain"
	"github.com/chadiek/patient-qa/internal/infra/db"
	"github.com/chadiek/patient-qa/internal/orchestrator"
	"github.com/chadiek/patient-qa/internal/scenario"
)

const wsWriteTimeout = 10 * time.Second

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Dashboard may be served from another origin.
		return true
	},
}

type api struct {
	runner    Runner
	patients  Patients
	scenarios Scenarios
}

type errorBody struct {
	Error string `json:"error"`
}

func jsonError(c echo.Context, code int, err error) error {
	return c.JSON(code, errorBody{Error: err.Error()})
}

func (a api) status(c echo.Context) error {
	return c.JSON(http.StatusOK, a.runner.Snapshot())
}

// statusStream pushes every snapshot change until the client goes away.
func (a api) statusStream(c echo.Context) error {
	conn, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("[http] ws upgrade error: %v", err)
		return nil
	}
	defer func() { _ = conn.Close() }()

	updates, stop := a.runner.Subscribe()
	defer stop()

	// Reads only detect the close frame; clients send nothing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return nil
		case <-c.Request().Context().Done():
			return nil
		case snap := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(snap); err != nil {
				log.Printf("[http] ws write error: %v", err)
				return nil
			}
		}
	}
}

func (a api) listScenarios(c echo.Context) error {
	return c.JSON(http.StatusOK, a.scenarios.All())
}

func (a api) simulateAll(c echo.Context) error {
	return a.start(c, a.scenarios.All())
}

func (a api) simulateOne(c echo.Context) error {
	sc, err := a.scenarios.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, scenario.ErrUnknownScenario) {
			return jsonError(c, http.StatusNotFound, err)
		}
		return jsonError(c, http.StatusInternalServerError, err)
	}
	return a.start(c, []domain.Scenario{sc})
}

func (a api) start(c echo.Context, scenarios []domain.Scenario) error {
	ctx := c.Request().Context()
	patient, err := a.patients.ActivePatient(ctx)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return jsonError(c, http.StatusBadRequest, errors.New("register a patient before running simulations"))
		}
		return jsonError(c, http.StatusInternalServerError, err)
	}
	snap, err := a.runner.Start(ctx, patient, scenarios)
	switch {
	case errors.Is(err, orchestrator.ErrRunInProgress):
		return jsonError(c, http.StatusConflict, err)
	case errors.Is(err, orchestrator.ErrNoScenarios):
		return jsonError(c, http.StatusBadRequest, err)
	case err != nil:
		return jsonError(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusAccepted, snap)
}

func (a api) listPatients(c echo.Context) error {
	patients, err := a.patients.ListPatients(c.Request().Context())
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, patients)
}

func (a api) registerPatient(c echo.Context) error {
	var p domain.Patient
	if err := c.Bind(&p); err != nil {
		return jsonError(c, http.StatusBadRequest, errors.New("invalid JSON body"))
	}
	p.ID = 0
	saved, err := a.patients.RegisterPatient(c.Request().Context(), p)
	switch {
	case errors.Is(err, db.ErrInvalidPatient):
		return jsonError(c, http.StatusBadRequest, err)
	case errors.Is(err, db.ErrDuplicatePatient):
		return jsonError(c, http.StatusConflict, err)
	case err != nil:
		return jsonError(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusCreated, saved)
}

func (a api) deletePatient(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return jsonError(c, http.StatusBadRequest, errors.New("invalid patient id"))
	}
	if err := a.patients.DeletePatient(c.Request().Context(), uint(id)); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return jsonError(c, http.StatusNotFound, err)
		}
		return jsonError(c, http.StatusInternalServerError, err)
	}
	return c.NoContent(http.StatusNoContent)
}
