package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress   string
	PublicBaseURL string

	TwilioAccountSID      string
	TwilioAuthToken       string
	TwilioFromNumber      string
	TargetPhoneNumber     string
	ValidateTwilioSigning bool

	LLMAPIKey     string
	LLMBaseURL    string
	LLMModel      string
	LLMTimeout    time.Duration
	AnalyzerModel string

	MaxTurnsPerCall int
	MaxEmptyInputs  int
	CallSpacing     time.Duration
	PollInterval    time.Duration

	TranscriptsDir string
	OutputsDir     string
	ScenariosFile  string

	DBDriver string
	DBDSN    string

	SupabaseURL            string
	SupabaseServiceRoleKey string
	SupabaseBucket         string

	// Optional identity registered at startup when the registry is empty.
	PatientFullName string
	PatientDOB      string
	PatientEmail    string
	PatientPhone    string
}

// Load reads .env and environment variables and returns Config with sane defaults.
// Missing credentials are warnings; the affected feature degrades at use.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file loaded; using process environment")
	}

	cfg := Config{
		HTTPAddress:   getenv("HTTP_ADDRESS", ":8080"),
		PublicBaseURL: strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),

		TwilioAccountSID:      os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:       os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:      os.Getenv("TWILIO_FROM_NUMBER"),
		TargetPhoneNumber:     os.Getenv("TARGET_PHONE_NUMBER"),
		ValidateTwilioSigning: getbool("TWILIO_VALIDATE_SIGNATURE", true),

		LLMAPIKey:     getenv("LLM_API_KEY", os.Getenv("OPENAI_API_KEY")),
		LLMBaseURL:    os.Getenv("LLM_BASE_URL"),
		LLMModel:      getenv("LLM_MODEL", "gpt-4o-mini"),
		LLMTimeout:    time.Duration(getint("LLM_TIMEOUT_SECONDS", 4)) * time.Second,
		AnalyzerModel: os.Getenv("ANALYZER_MODEL"),

		MaxTurnsPerCall: getint("MAX_TURNS_PER_CALL", 15),
		MaxEmptyInputs:  getint("MAX_EMPTY_INPUTS", 5),
		CallSpacing:     time.Duration(getint("CALLS_SPACING_SECONDS", 90)) * time.Second,
		PollInterval:    time.Duration(getint("POLL_INTERVAL_SECONDS", 3)) * time.Second,

		TranscriptsDir: getenv("TRANSCRIPTS_DIR", "transcripts"),
		OutputsDir:     getenv("OUTPUTS_DIR", "outputs"),
		ScenariosFile:  os.Getenv("SCENARIOS_FILE"),

		DBDriver: getenv("DB_DRIVER", "sqlite"),
		DBDSN:    getenv("DB_DSN", "data/patient-qa.db"),

		SupabaseURL:            os.Getenv("SUPABASE_URL"),
		SupabaseServiceRoleKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:         getenv("SUPABASE_BUCKET", "transcripts"),

		PatientFullName: strings.TrimSpace(os.Getenv("PATIENT_FULL_NAME")),
		PatientDOB:      strings.TrimSpace(os.Getenv("PATIENT_DOB")),
		PatientEmail:    strings.TrimSpace(os.Getenv("PATIENT_EMAIL")),
		PatientPhone:    strings.TrimSpace(os.Getenv("PATIENT_PHONE")),
	}
	if cfg.AnalyzerModel == "" {
		cfg.AnalyzerModel = cfg.LLMModel
	}

	for _, w := range cfg.Warnings() {
		log.Printf("Warning: %s", w)
	}
	log.Printf("config: HTTP_ADDRESS=%s DB_DRIVER=%s LLM_MODEL=%s", cfg.HTTPAddress, cfg.DBDriver, cfg.LLMModel)
	return cfg
}

// Warnings lists the features that will not work with this configuration.
func (c Config) Warnings() []string {
	var out []string
	if c.TwilioAccountSID == "" || c.TwilioAuthToken == "" {
		out = append(out, "TWILIO_ACCOUNT_SID/TWILIO_AUTH_TOKEN not set - calls cannot be placed")
	}
	if c.TwilioFromNumber == "" || c.TargetPhoneNumber == "" {
		out = append(out, "TWILIO_FROM_NUMBER/TARGET_PHONE_NUMBER not set - calls cannot be placed")
	}
	if c.PublicBaseURL == "" {
		out = append(out, "PUBLIC_BASE_URL not set - Twilio cannot reach the webhooks")
	}
	if c.LLMAPIKey == "" {
		out = append(out, "LLM_API_KEY not set - patient replies fall back to canned phrases and analysis finds nothing")
	}
	if c.SupabaseURL == "" || c.SupabaseServiceRoleKey == "" {
		out = append(out, "SUPABASE_URL/SUPABASE_SERVICE_ROLE_KEY not set - artifacts stay local")
	}
	if !c.ValidateTwilioSigning {
		out = append(out, "TWILIO_VALIDATE_SIGNATURE=false - webhook signatures are not checked")
	}
	return out
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Printf("Warning: %s=%q is not a positive integer; using %d", key, raw, def)
		return def
	}
	return n
}

func getbool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("Warning: %s=%q is not a boolean; using %v", key, raw, def)
		return def
	}
	return b
}
