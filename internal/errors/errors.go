// Package errors holds sentinel errors shared across sitegate packages.
package errors

import "errors"

// Persistence errors.
var (
	ErrDocumentMissing   = errors.New("doesn't exist")
	ErrInvalidJSON       = errors.New("invalid JSON data")
	ErrStoreNotSupported = errors.New("store type not supported")
)

// Configuration errors.
var (
	ErrPolicyMissing     = errors.New("policy key missing")
	ErrInvalidAlgorithm  = errors.New("unsupported token algorithm")
	ErrCookieNameMissing = errors.New("cookie name policy is empty")
)

// Domain validation errors.
var (
	ErrReservedUser  = errors.New("reserved user cannot be modified")
	ErrReservedGroup = errors.New("reserved group cannot be modified")
	ErrUserExists    = errors.New("user already exists")
	ErrUserNotFound  = errors.New("user not found")
	ErrGroupExists   = errors.New("group already exists")
	ErrGroupNotFound = errors.New("group not found")
	ErrInvalidName   = errors.New("invalid name")
)
