package shell

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestExec_Run(t *testing.T) {
	e := Exec{Logger: zerolog.Nop()}

	if err := e.Run(context.Background(), "true"); err != nil {
		t.Errorf("Run(true) failed: %v", err)
	}
	if err := e.Run(context.Background(), "exit 3"); err == nil {
		t.Error("Expected error for non-zero exit status")
	}
}

func TestExec_Start(t *testing.T) {
	e := Exec{Logger: zerolog.Nop()}
	target := filepath.Join(t.TempDir(), "out.txt")

	p, err := e.Start(context.Background(), "echo hello > "+Quote(target))
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if err := p.Wait(); err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}

	data, err := os.ReadFile(target) // #nosec G304 - controlled test path
	if err != nil {
		t.Fatalf("Failed to read output: %v", err)
	}
	if string(data) != "hello\n" {
		t.Errorf("Expected 'hello\\n', got %q", string(data))
	}
}

func TestQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "images/NOAA_19/NOAA_19_20240601-100000.wav", want: "'images/NOAA_19/NOAA_19_20240601-100000.wav'"},
		{in: "it's", want: `'it'\''s'`},
		{in: "", want: "''"},
	}

	for _, tt := range tests {
		if got := Quote(tt.in); got != tt.want {
			t.Errorf("Quote(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}

	e := Exec{Logger: zerolog.Nop()}
	if err := e.Run(context.Background(), "test "+Quote("it's")+" = \"it's\""); err != nil {
		t.Errorf("Quoted string did not round-trip through sh: %v", err)
	}
}
