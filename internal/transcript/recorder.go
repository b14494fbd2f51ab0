// Package transcript persists finalized calls as a readable text file and a JSON record.
package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chadiek/patient-qa/internal/domain"
	"github.com/chadiek/patient-qa/internal/infra/storage"
	"github.com/chadiek/patient-qa/internal/session"
)

const baseNameLayout = "20060102_150405"

var ErrEmptyTranscript = errors.New("transcript has no turns")

// Record is the machine-readable transcript; the analyzer reloads it from disk.
type Record struct {
	CallID         string        `json:"call_id"`
	ScenarioID     string        `json:"scenario_id"`
	ScenarioName   string        `json:"scenario_name"`
	PatientName    string        `json:"patient_name"`
	Timestamp      time.Time     `json:"timestamp"`
	ElapsedSeconds int           `json:"elapsed_seconds"`
	TurnCount      int           `json:"turn_count"`
	Turns          []domain.Turn `json:"turns"`
}

// Files are the locations a transcript was written to.
type Files struct {
	Text string
	JSON string
	// Remote is the object-storage URL of the JSON record, when uploaded.
	Remote string
}

// Archive stores the call row in the relational store.
type Archive interface {
	ArchiveCall(ctx context.Context, rec Record, files Files) error
}

// Recorder writes transcripts under Dir and mirrors them to the optional archive and uploader.
type Recorder struct {
	Dir      string
	Archive  Archive
	Uploader storage.Uploader
	Now      func() time.Time
}

func NewRecorder(dir string, archive Archive, uploader storage.Uploader) *Recorder {
	return &Recorder{Dir: dir, Archive: archive, Uploader: uploader, Now: time.Now}
}

// Save writes <scenario>_<utc stamp>_<call id>.txt and .json. Local files are authoritative:
// archive and upload failures are logged and never fail the save.
func (r *Recorder) Save(ctx context.Context, snap session.Snapshot, turns []domain.Turn) (Files, error) {
	if len(turns) == 0 {
		return Files{}, ErrEmptyTranscript
	}
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return Files{}, fmt.Errorf("create transcripts dir: %w", err)
	}

	now := r.now()
	rec := Record{
		CallID:         snap.CallID,
		ScenarioID:     orUnknown(snap.ScenarioID),
		ScenarioName:   orUnknown(snap.ScenarioName),
		PatientName:    orUnknown(snap.PatientName),
		Timestamp:      now,
		ElapsedSeconds: snap.ElapsedSeconds,
		TurnCount:      snap.TurnCount,
		Turns:          turns,
	}
	base := baseName(rec.ScenarioID, now, rec.CallID)
	files := Files{
		Text: filepath.Join(r.Dir, base+".txt"),
		JSON: filepath.Join(r.Dir, base+".json"),
	}

	if err := os.WriteFile(files.Text, []byte(RenderText(rec)), 0o644); err != nil {
		return Files{}, fmt.Errorf("write transcript text: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return Files{}, fmt.Errorf("encode transcript: %w", err)
	}
	if err := os.WriteFile(files.JSON, data, 0o644); err != nil {
		return Files{}, fmt.Errorf("write transcript json: %w", err)
	}
	log.Printf("[transcript] saved %s", files.Text)

	if r.Uploader != nil {
		if url, err := r.Uploader.Upload(ctx, "transcripts/"+base+".json", "application/json", data); err != nil {
			log.Printf("[transcript] upload failed (local files kept): %v", err)
		} else {
			files.Remote = url
		}
	}
	if r.Archive != nil {
		if err := r.Archive.ArchiveCall(ctx, rec, files); err != nil {
			log.Printf("[transcript] call sync failed (local files kept): %v", err)
		}
	}
	return files, nil
}

func (r *Recorder) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now().UTC()
}

// RenderText is the human-readable transcript layout.
func RenderText(rec Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CALL:     %s\n", rec.ScenarioName)
	fmt.Fprintf(&b, "PATIENT:  %s\n", rec.PatientName)
	fmt.Fprintf(&b, "DATE:     %s\n", rec.Timestamp.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "CALL SID: %s\n", rec.CallID)
	fmt.Fprintf(&b, "DURATION: %ds\n", rec.ElapsedSeconds)
	fmt.Fprintf(&b, "TURNS:    %d\n", rec.TurnCount)
	b.WriteString("\n--- TRANSCRIPT ---\n\n")
	for _, t := range rec.Turns {
		label := "[AGENT]  "
		if t.Role == domain.RolePatient {
			label = "[PATIENT]"
		}
		fmt.Fprintf(&b, "%s %s\n\n", label, t.Text)
	}
	b.WriteString("--- END TRANSCRIPT ---\n")
	return b.String()
}

// LoadFile reads one JSON transcript record.
func LoadFile(path string) (Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return rec, nil
}

// LoadDir reads every JSON record in dir, oldest file name first. Unreadable
// files are logged and skipped; a missing dir yields no records.
func LoadDir(dir string) ([]Record, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	out := make([]Record, 0, len(paths))
	for _, p := range paths {
		rec, err := LoadFile(p)
		if err != nil {
			log.Printf("[transcript] skipping %s: %v", p, err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// baseName keeps same-second saves of one scenario apart by call id.
func baseName(scenarioID string, at time.Time, callID string) string {
	base := fileSafe(scenarioID) + "_" + at.Format(baseNameLayout)
	if id := fileSafe(callID); id != "" {
		base += "_" + id
	}
	return base
}

func fileSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '-'
		}
		return r
	}, strings.TrimSpace(s))
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}
