package secret

import "errors"

var (
	ErrSecretTooShort = errors.New("secret too short")
	ErrSecretTooLong  = errors.New("secret too long")
	ErrInvalidHash    = errors.New("invalid secret hash")
)
