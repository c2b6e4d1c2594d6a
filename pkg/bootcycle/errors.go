package bootcycle

import "errors"

// Boot cycle errors.
var (
	// ErrRadioInit is fatal: the boot halts without sleeping.
	ErrRadioInit = errors.New("radio initialization failed")

	// ErrNoNonces means no nonce buffer has been stored yet.
	ErrNoNonces = errors.New("no saved nonces")

	// ErrNoSession means no session buffer is cached in retained memory.
	ErrNoSession = errors.New("no saved session")

	// ErrSleepFailed means DeepSleep or Restart returned.
	ErrSleepFailed = errors.New("deep sleep failed")
)
