package session

import "errors"

// Errors returned by the registry. Setup errors are terminal for the tab:
// the session is torn down and a single error event is published.
var (
	ErrAuthSetup   = errors.New("authentication setup failed")
	ErrKeyNotFound = errors.New("private key not found")
	ErrConnection  = errors.New("connection failed")
	ErrShell       = errors.New("shell could not be opened")

	// ErrCaptureBusy rejects a command while another capture is in flight.
	ErrCaptureBusy = errors.New("a command is already executing on this tab")
	// ErrNotConnected is returned for tabs without a live shell.
	ErrNotConnected = errors.New("tab is not connected")
	// ErrSuperseded is returned to a connect attempt overtaken by a newer
	// connect or disconnect for the same tab.
	ErrSuperseded = errors.New("connection attempt superseded")
	// ErrClosed is returned once the registry has been shut down.
	ErrClosed = errors.New("registry is shut down")
)
