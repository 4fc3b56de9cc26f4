package ports

// SecretStore is the OS credential store, addressed by (service, account).
type SecretStore interface {
	// Get returns the secret. found is false when no secret exists.
	Get(service, account string) (secret string, found bool, err error)

	// Set stores or replaces the secret.
	Set(service, account, secret string) error

	// Delete removes the secret. Deleting a missing secret is not an error.
	Delete(service, account string) error
}
