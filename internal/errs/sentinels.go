// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates an authenticated caller lacks permission for the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., username taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidArgument indicates a request that fails validation.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrRateLimited indicates too many failed login attempts.
	ErrRateLimited = errors.New("rate limited")
)

// Resolution pipeline failures. All of them are absorbed into a safe default screen.
var (
	// ErrSessionCheck indicates the initial session lookup failed; treated as "no session".
	ErrSessionCheck = errors.New("session check failed")

	// ErrProfileFetch indicates the profile snapshot could not be assembled.
	ErrProfileFetch = errors.New("profile fetch failed")

	// ErrSettingsFetch indicates global settings could not be read; treated as no global grace period.
	ErrSettingsFetch = errors.New("settings fetch failed")

	// ErrPasswordPolicy indicates a new password does not satisfy the local policy.
	ErrPasswordPolicy = errors.New("password does not meet policy")
)
