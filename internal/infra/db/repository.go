package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chadiek/patient-qa/internal/domain"
	"github.com/chadiek/patient-qa/internal/transcript"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrDuplicatePatient = errors.New("a patient with this email or phone is already registered")
	ErrInvalidPatient   = errors.New("invalid patient")
)

var phonePattern = regexp.MustCompile(`^\+1\d{10}$`)

// Repository is the gorm-backed persistence collaborator.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects with OpenGorm and migrates the schema.
func Open(driver, dsn string) (*Repository, error) {
	gormDB, err := OpenGorm(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open gorm store: %w", err)
	}
	return New(gormDB)
}

func New(gormDB *gorm.DB) (*Repository, error) {
	r := &Repository{db: gormDB, now: func() time.Time { return time.Now().UTC() }}
	if err := r.db.AutoMigrate(&patientRow{}, &callRow{}, &findingRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return r, nil
}

func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ValidatePatient checks a registration before it is stored.
func ValidatePatient(p domain.Patient) error {
	var problems []string
	if strings.TrimSpace(p.FullName) == "" {
		problems = append(problems, "full name is required")
	}
	if !strings.Contains(p.Email, "@") {
		problems = append(problems, "email must contain '@'")
	}
	if !phonePattern.MatchString(p.Phone) {
		problems = append(problems, "phone must be in +1XXXXXXXXXX format")
	}
	if strings.TrimSpace(p.DOB) == "" {
		problems = append(problems, "date of birth is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidPatient, strings.Join(problems, "; "))
	}
	return nil
}

// RegisterPatient validates and stores a new identity.
func (r *Repository) RegisterPatient(ctx context.Context, p domain.Patient) (domain.Patient, error) {
	p.FullName = strings.TrimSpace(p.FullName)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.Phone = strings.TrimSpace(p.Phone)
	p.DOB = strings.TrimSpace(p.DOB)
	if err := ValidatePatient(p); err != nil {
		return domain.Patient{}, err
	}

	var out domain.Patient
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&patientRow{}).
			Where("email = ? OR phone = ?", p.Email, p.Phone).
			Count(&n).Error; err != nil {
			return fmt.Errorf("duplicate lookup: %w", err)
		}
		if n > 0 {
			return ErrDuplicatePatient
		}
		row := patientRow{FullName: p.FullName, Email: p.Email, Phone: p.Phone, DOB: p.DOB, CreatedAt: r.now()}
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicatePatient
			}
			return fmt.Errorf("create patient: %w", err)
		}
		out = row.toDomain()
		return nil
	})
	if err != nil {
		return domain.Patient{}, err
	}
	return out, nil
}

// ListPatients returns every identity in registration order.
func (r *Repository) ListPatients(ctx context.Context) ([]domain.Patient, error) {
	var rows []patientRow
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	out := make([]domain.Patient, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// ActivePatient is the first registered identity.
func (r *Repository) ActivePatient(ctx context.Context) (domain.Patient, error) {
	var row patientRow
	err := r.db.WithContext(ctx).Order("id ASC").Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Patient{}, ErrNotFound
		}
		return domain.Patient{}, fmt.Errorf("active patient: %w", err)
	}
	return row.toDomain(), nil
}

func (r *Repository) DeletePatient(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&patientRow{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete patient: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ArchiveCall upserts the finished call keyed by call id.
func (r *Repository) ArchiveCall(ctx context.Context, rec transcript.Record, files transcript.Files) error {
	turnsJSON, err := json.Marshal(rec.Turns)
	if err != nil {
		return fmt.Errorf("marshal turns: %w", err)
	}
	row := callRow{
		CallID:         rec.CallID,
		ScenarioID:     rec.ScenarioID,
		ScenarioName:   rec.ScenarioName,
		PatientName:    rec.PatientName,
		ElapsedSeconds: rec.ElapsedSeconds,
		TurnCount:      rec.TurnCount,
		TurnsJSON:      string(turnsJSON),
		TextPath:       files.Text,
		RemoteURL:      files.Remote,
		RecordedAt:     rec.Timestamp.UTC(),
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "call_id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save call: %w", err)
	}
	return nil
}

// ListCalls returns call summaries, newest first.
func (r *Repository) ListCalls(ctx context.Context) ([]CallSummary, error) {
	var rows []callRow
	if err := r.db.WithContext(ctx).Order("recorded_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	out := make([]CallSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toSummary())
	}
	return out, nil
}

// CallTurns returns the stored turns of one call.
func (r *Repository) CallTurns(ctx context.Context, callID string) ([]domain.Turn, error) {
	var row callRow
	if err := r.db.WithContext(ctx).Where("call_id = ?", callID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get call: %w", err)
	}
	turns, err := row.turns()
	if err != nil {
		return nil, fmt.Errorf("decode turns for %s: %w", callID, err)
	}
	return turns, nil
}

// SaveFindings stores one analysis run's findings in a single transaction.
func (r *Repository) SaveFindings(ctx context.Context, runID string, findings []domain.Finding) error {
	if len(findings) == 0 {
		return nil
	}
	now := r.now()
	rows := make([]findingRow, 0, len(findings))
	for _, f := range findings {
		rows = append(rows, findingRowFromDomain(runID, f, now))
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("save findings: %w", err)
	}
	return nil
}

// Findings returns stored findings for a run, or all runs when runID is empty.
func (r *Repository) Findings(ctx context.Context, runID string) ([]domain.Finding, error) {
	q := r.db.WithContext(ctx).Order("id ASC")
	if runID != "" {
		q = q.Where("run_id = ?", runID)
	}
	var rows []findingRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	out := make([]domain.Finding, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
