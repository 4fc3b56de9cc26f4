package ports

// SecretFormData holds the result of a secret entry form.
type SecretFormData struct {
	Service   string
	Account   string
	Secret    string
	Confirmed bool
}

// DialogProvider abstracts interactive user dialogs.
type DialogProvider interface {
	// SecretForm asks the user for a secret. Prefilled service and account may
	// be edited. Confirmed is true only if the user accepted.
	SecretForm(prefill SecretFormData) (SecretFormData, error)
}
