package store

import "errors"

var (
	ErrVisitNotFound     = errors.New("visit not found")
	ErrNoWaitingVisits   = errors.New("no waiting visits")
	ErrAlreadyInProgress = errors.New("a visit is already in progress")
	ErrInvalidState      = errors.New("invalid visit state")
	ErrEmptyName         = errors.New("name must not be empty")
	ErrInvalidContact    = errors.New("contact number is invalid")
	ErrInvalidProfile    = errors.New("profile update is invalid")
)
