package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Timings are the report lines of a run in milliseconds.
type Timings struct {
	HorizontalMs  float64 `json:"horizontalMs"`
	VerticalMs    float64 `json:"verticalMs"`
	DeviceTotalMs float64 `json:"deviceTotalMs"`
	ReadbackMs    float64 `json:"readbackMs"`
	WallClockMs   float64 `json:"wallClockMs"`
}

// Verification is the comparison of a run's output with the reference device.
type Verification struct {
	MSE        float64 `json:"mse"`
	MaxAbsDiff int     `json:"maxAbsDiff"`
	Passed     bool    `json:"passed"`
}

// RunRecord describes one completed blur.
type RunRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	InputPath  string `json:"inputPath"`
	OutputPath string `json:"outputPath,omitempty"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Format     string `json:"format"`

	Driver   string `json:"driver"`
	Platform string `json:"platform"`
	Device   string `json:"device"`

	FilterKind string `json:"filterKind"`
	FilterSize int    `json:"filterSize"`
	Local      [2]int `json:"local"`
	Global     [2]int `json:"global"`

	Timings      Timings       `json:"timings"`
	Verification *Verification `json:"verification,omitempty"`
}

// NewRunRecord returns a record with a fresh ID and the current time.
func NewRunRecord() *RunRecord {
	return &RunRecord{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
	}
}

// RunInfo is the listing summary of a run.
type RunInfo struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	InputPath     string    `json:"inputPath"`
	Device        string    `json:"device"`
	FilterSize    int       `json:"filterSize"`
	DeviceTotalMs float64   `json:"deviceTotalMs"`
}

// ToInfo converts a full record to its summary.
func (r *RunRecord) ToInfo() RunInfo {
	return RunInfo{
		ID:            r.ID,
		Timestamp:     r.Timestamp,
		InputPath:     r.InputPath,
		Device:        r.Device,
		FilterSize:    r.FilterSize,
		DeviceTotalMs: r.Timings.DeviceTotalMs,
	}
}

// Validate checks that the record has the fields every listing relies on.
func (r *RunRecord) Validate() error {
	if err := CheckID(r.ID); err != nil {
		return err
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if r.InputPath == "" {
		return &ValidationError{Field: "InputPath", Reason: "cannot be empty"}
	}
	if r.Width <= 0 || r.Height <= 0 {
		return &ValidationError{Field: "Width/Height", Reason: "must be positive"}
	}
	if r.FilterSize <= 0 {
		return &ValidationError{Field: "FilterSize", Reason: "must be positive"}
	}
	if r.Local[0] <= 0 || r.Local[1] <= 0 {
		return &ValidationError{Field: "Local", Reason: "must be positive"}
	}
	if r.Timings.DeviceTotalMs < 0 || r.Timings.WallClockMs < 0 {
		return &ValidationError{Field: "Timings", Reason: "cannot be negative"}
	}
	return nil
}

// CheckID rejects ids that are empty or are not a single path element, so an
// id can never address anything outside the runs directory.
func CheckID(id string) error {
	switch {
	case id == "":
		return &ValidationError{Field: "ID", Reason: "cannot be empty"}
	case id == "." || strings.Contains(id, "..") || strings.ContainsAny(id, `/\:`):
		return &ValidationError{Field: "ID", Reason: fmt.Sprintf("%q is not a valid run id", id)}
	}
	return nil
}

// ValidationError represents an invalid run record.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
