// Package orchestrator runs batches of scenarios against one patient identity,
// one call at a time, and publishes progress snapshots.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chadiek/patient-qa/internal/analyzer"
	"github.com/chadiek/patient-qa/internal/domain"
	"github.com/chadiek/patient-qa/internal/metrics"
	"github.com/chadiek/patient-qa/internal/session"
	"github.com/chadiek/patient-qa/internal/telephony"
)

var (
	ErrRunInProgress = errors.New("a simulation run is already in progress")
	ErrNoScenarios   = errors.New("no scenarios to run")
)

const (
	DefaultSpacing      = 90 * time.Second
	DefaultPollInterval = 3 * time.Second
	drainTimeout        = 30 * time.Second
)

// Status is the lifecycle of a run.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// CallStatus is the lifecycle of one scenario entry within a run.
type CallStatus string

const (
	CallPending    CallStatus = "pending"
	CallInProgress CallStatus = "in_progress"
	CallComplete   CallStatus = "complete"
	CallError      CallStatus = "error"
)

// CallEntry is one scenario's progress.
type CallEntry struct {
	ScenarioID   string     `json:"scenario_id"`
	ScenarioName string     `json:"scenario_name"`
	CallID       string     `json:"call_sid,omitempty"`
	Status       CallStatus `json:"status"`
	// TimedOut is set when the spacing deadline passed before the call finished.
	TimedOut bool   `json:"timed_out,omitempty"`
	Error    string `json:"error,omitempty"`
}

// RunSnapshot is an immutable copy of run progress.
type RunSnapshot struct {
	RunID       string      `json:"run_id,omitempty"`
	Status      Status      `json:"status"`
	PatientName string      `json:"patient_name,omitempty"`
	Total       int         `json:"total"`
	Completed   int         `json:"completed"`
	Calls       []CallEntry `json:"calls"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  time.Time   `json:"finished_at"`
	ReportPath  string      `json:"report_path,omitempty"`
	// CallsAnalyzed counts every transcript in the report, not only this run's.
	CallsAnalyzed int    `json:"calls_analyzed"`
	Findings      int    `json:"findings"`
	Error         string `json:"error,omitempty"`
}

func (s RunSnapshot) clone() RunSnapshot {
	out := s
	out.Calls = append([]CallEntry(nil), s.Calls...)
	if out.Calls == nil {
		out.Calls = []CallEntry{}
	}
	return out
}

// Analyzer produces the bug report once every call of a run has been waited on.
type Analyzer interface {
	Run(ctx context.Context, req analyzer.Request) (analyzer.Report, error)
}

// Config wires the orchestrator to the outside world.
type Config struct {
	To   string
	From string
	// Webhooks returns the answer and status callback URLs for each placement.
	Webhooks     func() (answer, status string, err error)
	Spacing      time.Duration
	PollInterval time.Duration
	// Drain, when set, blocks until in-flight transcript saves have landed.
	Drain func(ctx context.Context) error
}

// Orchestrator owns at most one active run.
type Orchestrator struct {
	store    *session.Store
	placer   telephony.Placer
	analyzer Analyzer
	cfg      Config
	metrics  *metrics.Metrics
	now      func() time.Time

	mu      sync.Mutex
	running bool
	snap    RunSnapshot

	subMu sync.Mutex
	subs  map[chan RunSnapshot]struct{}

	wg sync.WaitGroup
}

func New(store *session.Store, placer telephony.Placer, a Analyzer, cfg Config, m *metrics.Metrics) *Orchestrator {
	if cfg.Spacing <= 0 {
		cfg.Spacing = DefaultSpacing
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Orchestrator{
		store:    store,
		placer:   placer,
		analyzer: a,
		cfg:      cfg,
		metrics:  m,
		now:      time.Now,
		snap:     RunSnapshot{Status: StatusIdle, Calls: []CallEntry{}},
		subs:     make(map[chan RunSnapshot]struct{}),
	}
}

// Snapshot returns a deep copy of the current run progress.
func (o *Orchestrator) Snapshot() RunSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snap.clone()
}

// Running reports whether a run is in flight.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Start begins a run in the background and returns its initial snapshot.
func (o *Orchestrator) Start(ctx context.Context, patient domain.Patient, scenarios []domain.Scenario) (RunSnapshot, error) {
	snap, err := o.begin(patient, scenarios)
	if err != nil {
		return RunSnapshot{}, err
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.recoverRun()
		o.execute(context.WithoutCancel(ctx), patient, scenarios)
	}()
	return snap, nil
}

// RunBatch runs every scenario in order and returns the final snapshot.
func (o *Orchestrator) RunBatch(ctx context.Context, patient domain.Patient, scenarios []domain.Scenario) (RunSnapshot, error) {
	if _, err := o.begin(patient, scenarios); err != nil {
		return RunSnapshot{}, err
	}
	return o.execute(ctx, patient, scenarios), nil
}

// Wait blocks until a run started with Start has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) begin(patient domain.Patient, scenarios []domain.Scenario) (RunSnapshot, error) {
	if len(scenarios) == 0 {
		return RunSnapshot{}, ErrNoScenarios
	}
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return RunSnapshot{}, ErrRunInProgress
	}
	o.running = true
	calls := make([]CallEntry, len(scenarios))
	for i, sc := range scenarios {
		calls[i] = CallEntry{ScenarioID: sc.ID, ScenarioName: sc.Name, Status: CallPending}
	}
	o.snap = RunSnapshot{
		RunID:       uuid.NewString(),
		Status:      StatusRunning,
		PatientName: patient.FullName,
		Total:       len(scenarios),
		Calls:       calls,
		StartedAt:   o.now().UTC(),
	}
	snap := o.snap.clone()
	o.mu.Unlock()

	log.Printf("[orchestrator] run %s started: %d scenario(s) for %s", snap.RunID, snap.Total, patient.FullName)
	o.publish(snap)
	return snap, nil
}

func (o *Orchestrator) execute(ctx context.Context, patient domain.Patient, scenarios []domain.Scenario) RunSnapshot {
	runID := o.Snapshot().RunID
	var placed []string

	for i, sc := range scenarios {
		callID, err := o.place(ctx, sc, patient)
		if err != nil {
			log.Printf("[orchestrator] %s: placement failed: %v", sc.ID, err)
			o.metrics.RecordPlacement(false)
			o.update(func(s *RunSnapshot) {
				s.Calls[i].Status = CallError
				s.Calls[i].Error = err.Error()
				s.Completed = i + 1
			})
			continue
		}
		o.metrics.RecordPlacement(true)
		placed = append(placed, callID)
		o.update(func(s *RunSnapshot) {
			s.Calls[i].CallID = callID
			s.Calls[i].Status = CallInProgress
		})

		finished := o.await(ctx, callID)
		if !finished {
			log.Printf("[orchestrator] %s (%s): still running after %s, moving on", sc.ID, callID, o.cfg.Spacing)
		}
		o.update(func(s *RunSnapshot) {
			s.Calls[i].Status = CallComplete
			s.Calls[i].TimedOut = !finished
			s.Completed = i + 1
		})
	}

	if o.cfg.Drain != nil {
		dctx, cancel := context.WithTimeout(ctx, drainTimeout)
		if err := o.cfg.Drain(dctx); err != nil {
			log.Printf("[orchestrator] waiting for transcripts: %v", err)
		}
		cancel()
	}

	// Every transcript on disk is analyzed, including calls abandoned by an
	// earlier run that finalized after it moved on.
	var report analyzer.Report
	var runErr error
	if o.analyzer != nil {
		report, runErr = o.analyzer.Run(ctx, analyzer.Request{RunID: runID, All: true})
		if runErr != nil {
			log.Printf("[orchestrator] analysis failed (run still completes): %v", runErr)
		}
	}
	if runErr != nil {
		o.metrics.RecordRun("analysis_failed")
	} else {
		o.metrics.RecordRun(string(StatusComplete))
	}

	final := o.finish(func(s *RunSnapshot) {
		s.Status = StatusComplete
		s.FinishedAt = o.now().UTC()
		s.ReportPath = report.Path
		s.CallsAnalyzed = report.CallsAnalyzed
		s.Findings = len(report.Findings)
		if runErr != nil {
			s.Error = runErr.Error()
		}
	})
	log.Printf("[orchestrator] run %s %s: %d/%d calls, %d finding(s)", final.RunID, final.Status, len(placed), final.Total, final.Findings)
	return final
}

// place dials one scenario and registers its session.
func (o *Orchestrator) place(ctx context.Context, sc domain.Scenario, patient domain.Patient) (string, error) {
	if o.placer == nil {
		return "", errors.New("no telephony gateway configured")
	}
	if o.cfg.Webhooks == nil {
		return "", errors.New("no webhook urls configured")
	}
	answer, status, err := o.cfg.Webhooks()
	if err != nil {
		return "", err
	}
	callID, err := o.placer.PlaceCall(ctx, telephony.CallRequest{
		To:        o.cfg.To,
		From:      o.cfg.From,
		AnswerURL: answer,
		StatusURL: status,
	})
	if err != nil {
		return "", err
	}
	if err := o.store.Create(callID, sc, patient); err != nil {
		return "", fmt.Errorf("register session %s: %w", callID, err)
	}
	log.Printf("[orchestrator] %s: placed call %s", sc.ID, callID)
	return callID, nil
}

// await returns true when the call finalized before the spacing deadline.
// Giving up leaves the call running; it may still finalize later.
func (o *Orchestrator) await(ctx context.Context, callID string) bool {
	deadline := time.NewTimer(o.cfg.Spacing)
	defer deadline.Stop()
	tick := time.NewTicker(o.cfg.PollInterval)
	defer tick.Stop()
	done := o.store.Done(callID)

	for {
		select {
		case <-done:
			return true
		case <-tick.C:
			if o.store.IsComplete(callID) {
				return true
			}
		case <-deadline.C:
			return o.store.IsComplete(callID)
		case <-ctx.Done():
			return false
		}
	}
}

// recoverRun releases the run slot and marks the run errored if a background run panics.
func (o *Orchestrator) recoverRun() {
	r := recover()
	if r == nil {
		return
	}
	log.Printf("[orchestrator] run aborted: %v", r)
	o.metrics.RecordRun(string(StatusError))
	o.finish(func(s *RunSnapshot) {
		s.Status = StatusError
		s.FinishedAt = o.now().UTC()
		s.Error = fmt.Sprint(r)
	})
}

func (o *Orchestrator) update(fn func(*RunSnapshot)) {
	o.mu.Lock()
	fn(&o.snap)
	snap := o.snap.clone()
	o.mu.Unlock()
	o.publish(snap)
}

func (o *Orchestrator) finish(fn func(*RunSnapshot)) RunSnapshot {
	o.mu.Lock()
	fn(&o.snap)
	o.running = false
	snap := o.snap.clone()
	o.mu.Unlock()
	o.publish(snap)
	return snap
}

// Subscribe returns a channel that always holds the newest snapshot, and a
// function that stops delivery. Slow readers skip intermediate snapshots.
func (o *Orchestrator) Subscribe() (<-chan RunSnapshot, func()) {
	ch := make(chan RunSnapshot, 1)
	ch <- o.Snapshot()
	o.subMu.Lock()
	o.subs[ch] = struct{}{}
	o.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.subMu.Lock()
			delete(o.subs, ch)
			o.subMu.Unlock()
		})
	}
}

func (o *Orchestrator) publish(snap RunSnapshot) {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	for ch := range o.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap.clone()
	}
}
