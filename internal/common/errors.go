// Package common defines shared constants and sentinel errors used across
// the intake, provisioning, and transport layers. Callers should use
// errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Intake validation errors.
	ErrValidation          = errors.New("validation error")
	ErrUsernameTaken       = errors.New("username already taken")
	ErrAlreadyRegistered   = errors.New("account already registered")
	ErrIPAlreadyRegistered = errors.New("ip address already registered")
	ErrBanned              = errors.New("user is banned")
	ErrRegistrationClosed  = errors.New("registration is closed")
	ErrRequestPending      = errors.New("registration request already pending")

	// Provisioning errors.
	ErrDirectoryUnavailable = errors.New("directory unavailable")
	ErrProvisionFailed      = errors.New("provisioning failed")
	ErrInconsistentState    = errors.New("inconsistent state")
	ErrAlreadyHandled       = errors.New("request already handled")

	// Token lifecycle errors.
	ErrTokenUsed    = errors.New("token already used")
	ErrTokenExpired = errors.New("token expired")
)
