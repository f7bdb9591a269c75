package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func TestSendReportsSuccess(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/logs" {
			hits.Add(1)
		}

		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	cmd := newRootCommand()

	var out bytes.Buffer

	cmd.SetOut(&out)
	cmd.SetArgs([]string{
		"--config", filepath.Join(t.TempDir(), "missing.yaml"),
		"--signal", "log",
		"--protocol", "http",
		"--endpoint", server.URL,
		"--count", "4",
	})

	err := cmd.ExecuteContext(context.Background())
	if err != nil {
		t.Fatalf("command failed: %v\n%s", err, out.String())
	}

	if hits.Load() != 1 {
		t.Fatalf("expected one request to /v1/logs, got %d", hits.Load())
	}

	if !strings.Contains(out.String(), "exported 4 logs") {
		t.Fatalf("unexpected output: %s", out.String())
	}
}

func TestSendReportsFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	t.Cleanup(server.Close)

	cmd := newRootCommand()

	var out bytes.Buffer

	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{
		"--config", filepath.Join(t.TempDir(), "missing.yaml"),
		"--protocol", "http",
		"--endpoint", server.URL,
	})

	err := cmd.ExecuteContext(context.Background())
	if err == nil {
		t.Fatal("expected the command to fail on a rejected batch")
	}

	if !strings.Contains(out.String(), "export of 1 spans failed") {
		t.Fatalf("unexpected output: %s", out.String())
	}
}

func TestSendRejectsUnknownSignal(t *testing.T) {
	t.Parallel()

	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--signal", "profile"})

	err := cmd.ExecuteContext(context.Background())
	if err == nil {
		t.Fatal("expected unknown signal to be rejected")
	}
}
