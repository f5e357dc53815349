package main

import (
	"bytes"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	flagBackend = ""
	flagQuiet = false

	var buf bytes.Buffer
	root := newRootCommand()
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.Contains(out, "version") {
		t.Errorf("version output = %q, want build info", out)
	}
}

func TestEnvCommand(t *testing.T) {
	t.Setenv("LIBAI_BACKEND", "echo")

	out, err := execute(t, "env")
	if err != nil {
		t.Fatalf("env error = %v", err)
	}
	for _, want := range []string{"backend:", "echo", "request_timeout:", "history_path:"} {
		if !strings.Contains(out, want) {
			t.Errorf("env output missing %q\noutput:\n%s", want, out)
		}
	}
}

func TestEnvCommandMasksAPIKey(t *testing.T) {
	t.Setenv("LIBAI_BACKEND", "openai")
	t.Setenv("LIBAI_OPENAI_API_KEY", "sk-veryverysecretkey123")

	out, err := execute(t, "env")
	if err != nil {
		t.Fatalf("env error = %v", err)
	}
	if strings.Contains(out, "sk-veryverysecretkey123") {
		t.Error("env output leaked the API key")
	}
	if !strings.Contains(out, "openai_api_key:") {
		t.Error("env output missing the masked key line")
	}
}

func TestCheckCommandWithEchoBackend(t *testing.T) {
	t.Setenv("LIBAI_BACKEND", "echo")

	if _, err := execute(t, "check", "--quiet"); err != nil {
		t.Fatalf("check error = %v", err)
	}
}

func TestCheckCommandBackendOverride(t *testing.T) {
	t.Setenv("LIBAI_BACKEND", "echo")

	_, err := execute(t, "check", "--quiet", "--backend", "bogus")
	if err == nil {
		t.Fatal("check with a bogus backend succeeded")
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", "(unset)"},
		{"short", "****"},
		{"sk-veryverysecret", "sk-v...****"},
	}
	for _, tt := range tests {
		if got := maskSecret(tt.input); got != tt.want {
			t.Errorf("maskSecret(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
