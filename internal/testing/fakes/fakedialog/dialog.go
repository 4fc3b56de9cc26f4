// Package fakedialog provides a test fake for ports.DialogProvider.
package fakedialog

import "github.com/acolita/shelltabs/internal/ports"

// Provider returns a canned form result.
type Provider struct {
	Result          ports.SecretFormData
	Err             error
	Called          bool
	ReceivedPrefill ports.SecretFormData
}

// New returns a new fake dialog provider.
func New() *Provider {
	return &Provider{}
}

func (p *Provider) SecretForm(prefill ports.SecretFormData) (ports.SecretFormData, error) {
	p.Called = true
	p.ReceivedPrefill = prefill
	if p.Err != nil {
		return prefill, p.Err
	}
	return p.Result, nil
}

var _ ports.DialogProvider = (*Provider)(nil)
