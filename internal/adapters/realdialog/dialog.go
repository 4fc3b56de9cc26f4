// Package realdialog provides a terminal DialogProvider built on charmbracelet/huh.
//
// When stdin is not a terminal (secrets piped in from a script) the provider
// falls back to reading one line per field from the input stream.
package realdialog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/acolita/shelltabs/internal/ports"
	"golang.org/x/term"
)

// Provider implements ports.DialogProvider on the controlling terminal.
type Provider struct {
	in          io.Reader
	out         io.Writer
	interactive bool
}

// New returns a provider bound to the process stdin/stderr.
func New() *Provider {
	return &Provider{
		in:          os.Stdin,
		out:         os.Stderr,
		interactive: term.IsTerminal(int(os.Stdin.Fd())),
	}
}

// NewWithStreams returns a non-interactive provider reading from in.
func NewWithStreams(in io.Reader, out io.Writer) *Provider {
	return &Provider{in: in, out: out}
}

// SecretForm asks for a secret, using a TUI form when attached to a terminal.
func (p *Provider) SecretForm(prefill ports.SecretFormData) (ports.SecretFormData, error) {
	if p.interactive {
		return runForm(prefill)
	}
	return p.readLines(prefill)
}

func (p *Provider) readLines(prefill ports.SecretFormData) (ports.SecretFormData, error) {
	scanner := bufio.NewScanner(p.in)
	result := prefill
	if result.Account == "" {
		result.Account = prompt(scanner, p.out, "Account", "")
	}

	fmt.Fprintf(p.out, "Secret for %s/%s: ", result.Service, result.Account)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return prefill, fmt.Errorf("read secret: %w", err)
		}
		return prefill, fmt.Errorf("read secret: no input")
	}
	result.Secret = strings.TrimRight(scanner.Text(), "\r\n")
	result.Confirmed = result.Secret != ""
	return result, nil
}

// prompt shows label and returns the trimmed answer, or def on empty input.
func prompt(scanner *bufio.Scanner, out io.Writer, label, def string) string {
	if def != "" {
		fmt.Fprintf(out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(out, "%s: ", label)
	}
	if !scanner.Scan() {
		return def
	}
	v := strings.TrimSpace(scanner.Text())
	if v == "" {
		return def
	}
	return v
}

var _ ports.DialogProvider = (*Provider)(nil)
