package realdialog

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/acolita/shelltabs/internal/ports"
)

func TestPromptWithInput(t *testing.T) {
	scanner := bufio.NewScanner(strings.NewReader("custom-value\n"))
	result := prompt(scanner, &bytes.Buffer{}, "Account", "default")
	if result != "custom-value" {
		t.Errorf("prompt() = %q, want %q", result, "custom-value")
	}
}

func TestPromptEmptyReturnsDefault(t *testing.T) {
	scanner := bufio.NewScanner(strings.NewReader("   \n"))
	result := prompt(scanner, &bytes.Buffer{}, "Account", "fallback")
	if result != "fallback" {
		t.Errorf("prompt() = %q, want %q", result, "fallback")
	}
}

func TestPromptEOFReturnsDefault(t *testing.T) {
	scanner := bufio.NewScanner(strings.NewReader(""))
	result := prompt(scanner, &bytes.Buffer{}, "Account", "safe")
	if result != "safe" {
		t.Errorf("prompt() = %q, want %q", result, "safe")
	}
}

func TestSecretFormNonInteractive(t *testing.T) {
	out := &bytes.Buffer{}
	p := NewWithStreams(strings.NewReader("hunter2\n"), out)

	got, err := p.SecretForm(ports.SecretFormData{Service: "svc", Account: "prod"})
	if err != nil {
		t.Fatalf("SecretForm() error: %v", err)
	}
	if got.Secret != "hunter2" || !got.Confirmed {
		t.Errorf("SecretForm() = %+v, want confirmed secret", got)
	}
	if got.Service != "svc" || got.Account != "prod" {
		t.Errorf("prefill not preserved: %+v", got)
	}
	if !strings.Contains(out.String(), "svc/prod") {
		t.Errorf("prompt output = %q, want service/account", out.String())
	}
}

func TestSecretFormNonInteractiveNoInput(t *testing.T) {
	p := NewWithStreams(strings.NewReader(""), &bytes.Buffer{})
	if _, err := p.SecretForm(ports.SecretFormData{}); err == nil {
		t.Fatal("SecretForm() expected error on empty input")
	}
}
