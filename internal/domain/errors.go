package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidInput   = errors.New("invalid input")
	ErrSessionExpired = errors.New("cwmp session expired")
	ErrTaskTerminal   = errors.New("task already in terminal state")
	ErrWorkflowPaused = errors.New("workflow is paused")
	ErrFirmwareInUse  = errors.New("firmware is referenced by active workflows")
)
