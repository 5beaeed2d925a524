package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Format string

const (
	FormatEDF  Format = "edf"
	FormatBDF  Format = "bdf"
	FormatVHDR Format = "vhdr"
	FormatSET  Format = "set"
	FormatFIF  Format = "fif"
	FormatCNT  Format = "cnt"
	FormatNPY  Format = "npy"
)

var knownFormats = map[Format]bool{
	FormatEDF: true, FormatBDF: true, FormatVHDR: true, FormatSET: true,
	FormatFIF: true, FormatCNT: true, FormatNPY: true,
}

func ParseFormat(raw string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), ".")))
	if !knownFormats[f] {
		return "", NewError(KindValidation, "unsupported EEG format %q", raw)
	}
	return f, nil
}

// FormatFromFilename определяет формат по расширению файла.
func FormatFromFilename(name string) (Format, error) {
	return ParseFormat(filepath.Ext(name))
}

type Action string

const (
	ActionView     Action = "view"
	ActionDownload Action = "download"
	ActionModify   Action = "modify"
	ActionDelete   Action = "delete"
	ActionShare    Action = "share"
)

// EegRecord is an uploaded recording. Only access to it is governed here;
// OwnerUserID never changes after creation.
type EegRecord struct {
	ID               uuid.UUID      `json:"id" db:"id"`
	OwnerUserID      string         `json:"owner_user_id" db:"owner_user_id"`
	Institution      string         `json:"institution" db:"institution"`
	Department       string         `json:"department" db:"department"`
	Filename         string         `json:"filename" db:"filename"`
	OriginalFilename string         `json:"original_filename" db:"original_filename"`
	Format           Format         `json:"format" db:"format"`
	SizeBytes        int64          `json:"size_bytes" db:"size_bytes"`
	UploadDate       time.Time      `json:"upload_date" db:"upload_date"`
	Tags             pq.StringArray `json:"tags" db:"tags"`
	Notes            string         `json:"notes" db:"notes"`
	SubjectID        string         `json:"subject_id" db:"subject_id"`
	StorageKey       string         `json:"-" db:"storage_key"`
	AdhdAnalysis     *AdhdAnalysis  `json:"adhd_analysis,omitempty" db:"adhd_analysis"`
}

// AdhdAnalysis is the state of the external classification job. The core
// only records that it was requested and stores whatever result comes back.
type AdhdAnalysis struct {
	Requested   bool       `json:"requested"`
	InProgress  bool       `json:"in_progress"`
	Performed   bool       `json:"performed"`
	Result      string     `json:"result,omitempty"`
	Confidence  float64    `json:"confidence,omitempty"`
	RequestedAt *time.Time `json:"requested_at,omitempty"`
	PerformedAt *time.Time `json:"performed_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
}

// Scan реализует sql.Scanner для колонки jsonb.
func (a *AdhdAnalysis) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported adhd_analysis type %T", src)
	}
	return json.Unmarshal(data, a)
}

func (a *AdhdAnalysis) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

// NewEegRecord carries the metadata of an object that is already in storage.
type NewEegRecord struct {
	Filename         string   `json:"filename"`
	OriginalFilename string   `json:"original_filename"`
	StorageKey       string   `json:"storage_key"`
	SizeBytes        int64    `json:"size_bytes"`
	Tags             []string `json:"tags"`
	Notes            string   `json:"notes"`
	SubjectID        string   `json:"subject_id"`
}

type RecordUpdate struct {
	Tags  []string `json:"tags"`
	Notes *string  `json:"notes"`
}
