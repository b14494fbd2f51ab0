package db

import (
	"encoding/json"
	"time"

	"github.com/chadiek/patient-qa/internal/domain"
)

type patientRow struct {
	ID        uint      `gorm:"primaryKey"`
	FullName  string    `gorm:"size:191;not null"`
	Email     string    `gorm:"size:191;uniqueIndex"`
	Phone     string    `gorm:"size:32;not null;uniqueIndex"`
	DOB       string    `gorm:"size:64;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (patientRow) TableName() string { return "patients" }

func (r patientRow) toDomain() domain.Patient {
	return domain.Patient{ID: r.ID, FullName: r.FullName, Email: r.Email, Phone: r.Phone, DOB: r.DOB}
}

type callRow struct {
	CallID         string    `gorm:"primaryKey;size:64"`
	ScenarioID     string    `gorm:"size:191;index"`
	ScenarioName   string    `gorm:"size:191"`
	PatientName    string    `gorm:"size:191"`
	ElapsedSeconds int       `gorm:"not null"`
	TurnCount      int       `gorm:"not null"`
	TurnsJSON      string    `gorm:"type:text;not null"`
	TextPath       string    `gorm:"size:512"`
	RemoteURL      string    `gorm:"size:1024"`
	RecordedAt     time.Time `gorm:"not null;index"`
}

func (callRow) TableName() string { return "calls" }

// CallSummary is a persisted call without its turns.
type CallSummary struct {
	CallID         string    `json:"call_id"`
	ScenarioID     string    `json:"scenario_id"`
	ScenarioName   string    `json:"scenario_name"`
	PatientName    string    `json:"patient_name"`
	ElapsedSeconds int       `json:"elapsed_seconds"`
	TurnCount      int       `json:"turn_count"`
	RecordedAt     time.Time `json:"recorded_at"`
}

func (r callRow) toSummary() CallSummary {
	return CallSummary{
		CallID:         r.CallID,
		ScenarioID:     r.ScenarioID,
		ScenarioName:   r.ScenarioName,
		PatientName:    r.PatientName,
		ElapsedSeconds: r.ElapsedSeconds,
		TurnCount:      r.TurnCount,
		RecordedAt:     r.RecordedAt,
	}
}

func (r callRow) turns() ([]domain.Turn, error) {
	var out []domain.Turn
	if err := json.Unmarshal([]byte(r.TurnsJSON), &out); err != nil {
		return nil, err
	}
	return out, nil
}

type findingRow struct {
	ID               uint      `gorm:"primaryKey"`
	RunID            string    `gorm:"size:64;index"`
	ScenarioID       string    `gorm:"size:191;index"`
	Category         string    `gorm:"size:32;not null"`
	Severity         string    `gorm:"size:16;not null;index"`
	TurnNumber       int       `gorm:"not null"`
	Description      string    `gorm:"type:text"`
	AgentQuote       string    `gorm:"type:text"`
	ExpectedBehavior string    `gorm:"type:text"`
	CreatedAt        time.Time `gorm:"not null"`
}

func (findingRow) TableName() string { return "findings" }

func findingRowFromDomain(runID string, f domain.Finding, now time.Time) findingRow {
	return findingRow{
		RunID:            runID,
		ScenarioID:       f.ScenarioID,
		Category:         string(f.Category),
		Severity:         string(f.Severity),
		TurnNumber:       f.TurnNumber,
		Description:      f.Description,
		AgentQuote:       f.AgentQuote,
		ExpectedBehavior: f.ExpectedBehavior,
		CreatedAt:        now,
	}
}

func (r findingRow) toDomain() domain.Finding {
	return domain.Finding{
		Category:         domain.Category(r.Category),
		Severity:         domain.Severity(r.Severity),
		Description:      r.Description,
		AgentQuote:       r.AgentQuote,
		ExpectedBehavior: r.ExpectedBehavior,
		ScenarioID:       r.ScenarioID,
		TurnNumber:       r.TurnNumber,
	}
}
