package store

import (
	"errors"
	"io"
	"os"
	"testing"

	"github.com/cwbudde/clblur/internal/profiling"
)

func TestTraceWriteAndRead(t *testing.T) {
	tmpDir := t.TempDir()
	id := "run-1"

	trace := []profiling.Timing{
		{Command: "convolveX", Start: 100, End: 400},
		{Command: "convolveY", Start: 450, End: 900},
		{Command: "readImage", Start: 910, End: 950},
	}
	if err := WriteTrace(tmpDir, id, trace); err != nil {
		t.Fatalf("WriteTrace failed: %v", err)
	}

	got, err := ReadTrace(tmpDir, id)
	if err != nil {
		t.Fatalf("ReadTrace failed: %v", err)
	}
	if len(got) != len(trace) {
		t.Fatalf("Expected %d entries, got %d", len(trace), len(got))
	}
	for i := range trace {
		if got[i] != trace[i] {
			t.Errorf("Entry %d: expected %+v, got %+v", i, trace[i], got[i])
		}
	}
}

func TestTraceWriterTruncates(t *testing.T) {
	tmpDir := t.TempDir()

	if err := WriteTrace(tmpDir, "r", []profiling.Timing{{Command: "a"}, {Command: "b"}}); err != nil {
		t.Fatal(err)
	}
	if err := WriteTrace(tmpDir, "r", []profiling.Timing{{Command: "c"}}); err != nil {
		t.Fatal(err)
	}
	got, err := ReadTrace(tmpDir, "r")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Command != "c" {
		t.Errorf("Expected only the second trace, got %+v", got)
	}
}

func TestTraceReaderEOFAndErrors(t *testing.T) {
	tmpDir := t.TempDir()

	if _, err := NewTraceReader(tmpDir, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	tw, err := NewTraceWriter(tmpDir, "r")
	if err != nil {
		t.Fatal(err)
	}
	if err := tw.Write(profiling.Timing{Command: "convolveX", Start: 1, End: 2}); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	tr, err := NewTraceReader(tmpDir, "r")
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()
	if _, err := tr.Read(); err != nil {
		t.Fatalf("First read failed: %v", err)
	}
	if _, err := tr.Read(); err != io.EOF {
		t.Errorf("Expected io.EOF, got %v", err)
	}

	// A malformed line is reported.
	if err := os.WriteFile(tw.Path(), []byte("{oops\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadTrace(tmpDir, "r"); err == nil {
		t.Error("Expected error for malformed trace")
	}
}
