package cli

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestInspect_HumanReadable(t *testing.T) {
	specPath := writeSpec(t)

	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"inspect", "--input", specPath})

	out := captureStdout(func() {
		if err := root.Execute(); err != nil {
			t.Fatalf("execute: %v", err)
		}
	})
	if !strings.Contains(out, "API: Basic Math API v1.0.0") {
		t.Errorf("expected API header, got: %s", out)
	}
	if !strings.Contains(out, "Tools (3):") {
		t.Errorf("expected tool count, got: %s", out)
	}
	if !strings.Contains(out, "[write] add_numbers(") {
		t.Errorf("expected safety-tagged tool line, got: %s", out)
	}
	if !strings.Contains(out, "[read] health_check(") {
		t.Errorf("expected read tool line, got: %s", out)
	}
}

func TestInspect_JSON(t *testing.T) {
	specPath := writeSpec(t)

	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"inspect", "--input", specPath, "--json"})

	out := captureStdout(func() {
		if err := root.Execute(); err != nil {
			t.Fatalf("execute: %v", err)
		}
	})

	var report inspectReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("parse inspect output: %v\n%s", err, out)
	}
	if report.API.Title != "Basic Math API" || report.API.Endpoints != 3 {
		t.Errorf("api block mismatch: %+v", report.API)
	}
	if len(report.Tools) != 3 {
		t.Fatalf("tools: got %d", len(report.Tools))
	}
	if report.Tools[0].Name != "add_numbers" || report.Tools[0].Safety != "write" {
		t.Errorf("first tool mismatch: %+v", report.Tools[0])
	}
	if report.Tools[2].Name != "health_check" || report.Tools[2].Safety != "read" {
		t.Errorf("last tool mismatch: %+v", report.Tools[2])
	}
}

func TestInspect_RequiresInput(t *testing.T) {
	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"inspect"})

	err := root.Execute()
	if err == nil || !errors.Is(err, ErrUsage) {
		t.Fatalf("expected usage error for missing input, got %v", err)
	}
}
