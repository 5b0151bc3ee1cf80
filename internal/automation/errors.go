package automation

import "errors"

// Control-plane sentinel errors, mapped to HTTP statuses by the handlers
var (
	ErrAlreadyRunning    = errors.New("automation is already running")
	ErrNotRunning        = errors.New("automation is not running")
	ErrHealthCheckFailed = errors.New("pre-start health check reported critical")
)
