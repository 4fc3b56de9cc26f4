package realdialog

import (
	"errors"

	"github.com/acolita/shelltabs/internal/ports"
	"github.com/charmbracelet/huh"
)

func runForm(prefill ports.SecretFormData) (ports.SecretFormData, error) {
	result := prefill
	confirmed := true

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Service").
				Description("Keychain service name").
				Value(&result.Service),

			huh.NewInput().
				Title("Account").
				Description("Secret reference used in connection settings").
				Value(&result.Account),

			huh.NewInput().
				Title("Secret").
				EchoMode(huh.EchoModePassword).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("secret cannot be empty")
					}
					return nil
				}).
				Value(&result.Secret),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Store this secret in the OS keychain?").
				Value(&confirmed),
		),
	)

	if err := form.Run(); err != nil {
		return prefill, err
	}
	result.Confirmed = confirmed
	return result, nil
}
