package models

import "errors"

var (
	ErrRedisGet = errors.New("redis get error")
	ErrRedisSet = errors.New("redis set error")
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionCreating = errors.New("error creating session")
	ErrSessionUpdating = errors.New("error updating session")
	ErrSessionDeleting = errors.New("error deleting session")
)

var (
	ErrRequestNotFound = errors.New("access request not found")
	ErrRequestCreating = errors.New("error creating access request")
	ErrRequestUpdating = errors.New("error updating access request")
)

var (
	ErrDatabaseConnection = errors.New("database connection error")
	ErrDatabaseQuery      = errors.New("database query error")
	ErrDatabaseInsert     = errors.New("database insert error")
	ErrDatabaseUpdate     = errors.New("database update error")
	ErrDatabaseDelete     = errors.New("database delete error")
	ErrRecordNotFound     = errors.New("record not found")
)

var (
	ErrBusUnavailable = errors.New("message bus unavailable")
	ErrBusTimeout     = errors.New("message bus operation timed out")
)

// ErrAccessDenied is the single outward rejection for every failed
// redemption precondition. Callers must not be able to tell a malformed
// token from an expired or already-used one.
var ErrAccessDenied = errors.New("access denied")

var ErrNotAuthorized = errors.New("not authorized")
