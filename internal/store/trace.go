package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/cwbudde/clblur/internal/profiling"
)

// TraceWriter writes the device command timings of a run as JSON lines.
// It is safe for concurrent use.
type TraceWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
}

func tracePath(baseDir, id string) string {
	return filepath.Join(baseDir, "runs", id, "trace.jsonl")
}

// NewTraceWriter creates <baseDir>/runs/<id>/trace.jsonl, truncating an
// existing trace.
func NewTraceWriter(baseDir, id string) (*TraceWriter, error) {
	if err := CheckID(id); err != nil {
		return nil, err
	}
	path := tracePath(baseDir, id)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	return &TraceWriter{
		file:   file,
		writer: bufio.NewWriter(file),
		path:   path,
	}, nil
}

// Write appends one command timing.
func (tw *TraceWriter) Write(t profiling.Timing) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal trace entry: %w", err)
	}
	if _, err := tw.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	if err := tw.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	return nil
}

// Close flushes buffered data and closes the file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		tw.file.Close()
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := tw.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// Path returns the trace file location.
func (tw *TraceWriter) Path() string {
	return tw.path
}

// WriteTrace stores a complete trace in one call.
func WriteTrace(baseDir, id string, trace []profiling.Timing) error {
	tw, err := NewTraceWriter(baseDir, id)
	if err != nil {
		return err
	}
	for _, t := range trace {
		if err := tw.Write(t); err != nil {
			tw.Close()
			return err
		}
	}
	return tw.Close()
}

// TraceReader reads command timings back.
type TraceReader struct {
	file    *os.File
	scanner *bufio.Scanner
}

// NewTraceReader opens the trace of run id.
func NewTraceReader(baseDir, id string) (*TraceReader, error) {
	if err := CheckID(id); err != nil {
		return nil, err
	}
	file, err := os.Open(tracePath(baseDir, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	return &TraceReader{file: file, scanner: bufio.NewScanner(file)}, nil
}

// Read returns the next entry, or io.EOF.
func (tr *TraceReader) Read() (*profiling.Timing, error) {
	if !tr.scanner.Scan() {
		if err := tr.scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to scan trace line: %w", err)
		}
		return nil, io.EOF
	}
	var t profiling.Timing
	if err := json.Unmarshal(tr.scanner.Bytes(), &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trace entry: %w", err)
	}
	return &t, nil
}

// ReadAll reads every remaining entry.
func (tr *TraceReader) ReadAll() ([]profiling.Timing, error) {
	var out []profiling.Timing
	for {
		t, err := tr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
}

// Close closes the trace file.
func (tr *TraceReader) Close() error {
	if err := tr.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// ReadTrace loads the whole trace of run id.
func ReadTrace(baseDir, id string) ([]profiling.Timing, error) {
	tr, err := NewTraceReader(baseDir, id)
	if err != nil {
		return nil, err
	}
	defer tr.Close()
	return tr.ReadAll()
}
