package domain

import "errors"

var (
	// ErrQuizNotFound indicates no questions exist for the requested subject.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrUserNotFound indicates the user record could not be loaded.
	ErrUserNotFound = errors.New("user not found")
	// ErrNoSelection is returned when advancing without a selected option.
	ErrNoSelection = errors.New("no option selected")
	// ErrUnknownOption is returned when a selection is not one of the question's options.
	ErrUnknownOption = errors.New("option not found")
	// ErrNotAnswering is returned for answer actions outside the answering phase.
	ErrNotAnswering = errors.New("attempt is not accepting answers")
	// ErrPermissionDenied marks a terminal camera-permission failure.
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrPermissionPending is returned for actions before the camera gate resolves.
	ErrPermissionPending = errors.New("camera permission not resolved")
	// ErrInvalidRecord indicates an attempt record violating its invariants.
	ErrInvalidRecord = errors.New("invalid attempt record")
	// ErrAttemptInProgress means the user already has a live proctored attempt.
	ErrAttemptInProgress = errors.New("attempt already in progress")
)
