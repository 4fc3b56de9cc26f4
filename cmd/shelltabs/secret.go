package main

import (
	"errors"
	"fmt"

	"github.com/acolita/shelltabs/internal/adapters/realdialog"
	"github.com/acolita/shelltabs/internal/assist"
	"github.com/acolita/shelltabs/internal/ports"
	"github.com/acolita/shelltabs/internal/security"
	"github.com/spf13/cobra"
)

var errCancelled = errors.New("cancelled")

func newSecretCmd(root *rootOptions) *cobra.Command {
	var service string
	secretCmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage server passwords in the system keyring",
	}
	secretCmd.PersistentFlags().StringVar(&service, "service", "", "keyring service (default: secrets.service from the config)")

	serviceName := func() string {
		if service != "" {
			return service
		}
		return root.config.Secrets.Service
	}

	secretCmd.AddCommand(&cobra.Command{
		Use:   "set <account>",
		Short: "Store the secret referenced by a server's secret_ref",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := promptSecret(realdialog.New(), serviceName(), args[0])
			if err != nil {
				return err
			}
			defer security.WipeBytes(secret)
			if err := security.NewKeyringStore().Set(serviceName(), args[0], string(secret)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s/%s\n", serviceName(), args[0])
			return nil
		},
	})
	secretCmd.AddCommand(&cobra.Command{
		Use:   "delete <account>",
		Short: "Remove a stored secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := security.NewKeyringStore().Delete(serviceName(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s/%s\n", serviceName(), args[0])
			return nil
		},
	})
	return secretCmd
}

// promptSecret asks for the secret of service/account.
func promptSecret(dialog ports.DialogProvider, service, account string) ([]byte, error) {
	result, err := dialog.SecretForm(ports.SecretFormData{Service: service, Account: account})
	if err != nil {
		return nil, err
	}
	if !result.Confirmed || result.Secret == "" {
		return nil, errCancelled
	}
	return []byte(result.Secret), nil
}

func newAPIKeyCmd(root *rootOptions) *cobra.Command {
	apiKeyCmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage the API key used for command generation and diagnosis",
	}
	assistant := func() *assist.Assistant {
		cfg := root.config
		return assist.New(nil, security.NewKeyringStore(),
			assist.WithAPIKeyRef(cfg.Secrets.APIKeyService, cfg.Secrets.APIKeyAccount))
	}

	apiKeyCmd.AddCommand(&cobra.Command{
		Use:   "set",
		Short: "Store the API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := root.config
			key, err := promptSecret(realdialog.New(), cfg.Secrets.APIKeyService, cfg.Secrets.APIKeyAccount)
			if err != nil {
				return err
			}
			defer security.WipeBytes(key)
			if err := assistant().SetAPIKey(string(key)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "API key stored")
			return nil
		},
	})
	apiKeyCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the stored API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := assistant()
			if !a.HasAPIKey() {
				fmt.Fprintln(cmd.OutOrStdout(), "no API key stored")
				return nil
			}
			if err := a.ClearAPIKey(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "API key removed")
			return nil
		},
	})
	return apiKeyCmd
}
