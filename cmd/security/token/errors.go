package token

import "errors"

var (
	ErrTokenMissing  = errors.New("token missing")
	ErrTokenTooShort = errors.New("token too short")
)
