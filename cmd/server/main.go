package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chadiek/patient-qa/internal/agent"
	"github.com/chadiek/patient-qa/internal/analyzer"
	"github.com/chadiek/patient-qa/internal/config"
	"github.com/chadiek/patient-qa/internal/dialogue"
	"github.com/chadiek/patient-qa/internal/domain"
	httpserver "github.com/chadiek/patient-qa/internal/httpserver"
	"github.com/chadiek/patient-qa/internal/infra/db"
	"github.com/chadiek/patient-qa/internal/infra/storage"
	"github.com/chadiek/patient-qa/internal/llm"
	"github.com/chadiek/patient-qa/internal/metrics"
	twiliomw "github.com/chadiek/patient-qa/internal/middleware"
	"github.com/chadiek/patient-qa/internal/orchestrator"
	"github.com/chadiek/patient-qa/internal/scenario"
	"github.com/chadiek/patient-qa/internal/session"
	"github.com/chadiek/patient-qa/internal/telephony"
	"github.com/chadiek/patient-qa/internal/transcript"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()

	catalog, err := scenario.Load(cfg.ScenariosFile)
	if err != nil {
		log.Fatalf("load scenarios: %v", err)
	}
	log.Printf("loaded %d scenario(s)", catalog.Len())

	repo, err := db.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer func() { _ = repo.Close() }()
	seedPatient(repo, cfg)

	var uploader storage.Uploader
	if s, err := storage.NewSupabaseStorage(storage.Config{
		URL:            cfg.SupabaseURL,
		ServiceRoleKey: cfg.SupabaseServiceRoleKey,
		Bucket:         cfg.SupabaseBucket,
	}); err == nil {
		uploader = s
	} else if !errors.Is(err, storage.ErrNotConfigured) {
		log.Printf("supabase storage disabled: %v", err)
	}

	m := metrics.New("")
	store := session.NewStore()
	m.RegisterActiveCalls("", store.Active)

	completer := llm.NewClient(cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMBaseURL)
	engine := agent.NewEngine(completer,
		agent.WithModel(cfg.LLMModel),
		agent.WithTimeout(cfg.LLMTimeout),
		agent.WithObserver(func(t agent.Tier, d time.Duration) { m.RecordReply(string(t), d) }),
	)

	recorder := transcript.NewRecorder(cfg.TranscriptsDir, repo, uploader)
	protocol := dialogue.New(store, engine, recorder,
		dialogue.Config{MaxTurns: cfg.MaxTurnsPerCall, MaxEmpty: cfg.MaxEmptyInputs},
		dialogue.Hooks{
			OnFinalize: func(_, reason string) { m.RecordFinalize(reason) },
			OnTurn:     func(role domain.Role) { m.RecordTurn(string(role)) },
		})

	analyzerOpts := []analyzer.Option{
		analyzer.WithScenarios(catalog),
		analyzer.WithSink(repo),
		analyzer.WithObserver(func(f domain.Finding) { m.RecordFinding(string(f.Severity), string(f.Category)) }),
	}
	if uploader != nil {
		analyzerOpts = append(analyzerOpts, analyzer.WithUploader(uploader))
	}
	bugs := analyzer.New(completer, analyzer.Config{
		TranscriptsDir: cfg.TranscriptsDir,
		OutputsDir:     cfg.OutputsDir,
		Model:          cfg.AnalyzerModel,
	}, analyzerOpts...)

	var placer telephony.Placer
	if gw, err := telephony.NewTwilioGateway(cfg.TwilioAccountSID, cfg.TwilioAuthToken); err == nil {
		placer = gw
	} else {
		log.Printf("call placement disabled: %v", err)
	}
	urls := telephony.URLBuilder{BaseURL: cfg.PublicBaseURL}
	runner := orchestrator.New(store, placer, bugs, orchestrator.Config{
		To:           cfg.TargetPhoneNumber,
		From:         cfg.TwilioFromNumber,
		Webhooks:     urls.Webhooks,
		Spacing:      cfg.CallSpacing,
		PollInterval: cfg.PollInterval,
		Drain:        protocol.Drain,
	}, m)

	e := httpserver.New(httpserver.Deps{
		Dialogue:  protocol,
		Runner:    runner,
		Patients:  repo,
		Scenarios: catalog,
		Twilio: twiliomw.TwilioConfig{
			AuthToken:  cfg.TwilioAuthToken,
			Validate:   cfg.ValidateTwilioSigning,
			RequestURL: func(r *http.Request) string { return urls.Absolute(r, r.URL.RequestURI()) },
		},
		Metrics: m.Handler(),
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
	if err := protocol.Drain(ctx); err != nil {
		log.Printf("pending transcripts not flushed: %v", err)
	}
}

// seedPatient registers the identity from the environment when none exists yet.
func seedPatient(repo *db.Repository, cfg config.Config) {
	if cfg.PatientFullName == "" {
		return
	}
	ctx := context.Background()
	if _, err := repo.ActivePatient(ctx); err == nil {
		return
	} else if !errors.Is(err, db.ErrNotFound) {
		log.Printf("seed patient: %v", err)
		return
	}
	p, err := repo.RegisterPatient(ctx, domain.Patient{
		FullName: cfg.PatientFullName,
		DOB:      cfg.PatientDOB,
		Email:    cfg.PatientEmail,
		Phone:    cfg.PatientPhone,
	})
	if err != nil {
		log.Printf("seed patient not registered: %v", err)
		return
	}
	log.Printf("registered patient %s from environment", p.FullName)
}
