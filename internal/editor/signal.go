package editor

import (
	"errors"

	"github.com/starford/folio/internal/apperr"
)

// Level grades a Signal.
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Signal is the short user-facing outcome of an operation.
type Signal struct {
	Level   Level  `json:"level"`
	Title   string `json:"title"`
	Message string `json:"message,omitempty"`
}

func success(title, msg string) Signal { return Signal{Level: LevelSuccess, Title: title, Message: msg} }
func info(title, msg string) Signal    { return Signal{Level: LevelInfo, Title: title, Message: msg} }
func warning(title, msg string) Signal { return Signal{Level: LevelWarning, Title: title, Message: msg} }

// failure maps err to an error Signal with a title per error kind.
func failure(err error) Signal {
	title := "Something went wrong"
	level := LevelError
	switch {
	case errors.Is(err, apperr.ErrParentNotFound):
		title = "Parent folder not found"
	case errors.Is(err, apperr.ErrEntryNotFound):
		title = "Entry not found"
	case errors.Is(err, apperr.ErrAlreadyExists):
		title = "Already exists"
	case errors.Is(err, apperr.ErrInvalidName):
		title = "Invalid name"
	case errors.Is(err, apperr.ErrLocked):
		title = "Entry is locked"
	case errors.Is(err, apperr.ErrNoPendingChanges):
		title = "Nothing to commit"
		level = LevelInfo
	case errors.Is(err, apperr.ErrWriteConflict), errors.Is(err, apperr.ErrConflict):
		title = "Changed on GitHub"
	case errors.Is(err, apperr.ErrCommitFailed):
		title = "Commit failed"
	case errors.Is(err, apperr.ErrMalformedNavigation):
		title = "Navigation file is invalid"
	case errors.Is(err, apperr.ErrNotFound):
		title = "Not found"
	case errors.Is(err, apperr.ErrUnsupported):
		title = "Not available for this repository"
		level = LevelInfo
	}
	return Signal{Level: level, Title: title, Message: err.Error()}
}
