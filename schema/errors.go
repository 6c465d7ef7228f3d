package schema

import "errors"

var (
	// ErrEmptyPrompt is returned when a prompt contains no content.
	ErrEmptyPrompt = errors.New("prompt is empty")
	// ErrBusy is returned when a reply is already streaming.
	ErrBusy = errors.New("a reply is already in progress")
	// ErrUnknownCommand is returned for unrecognized slash commands.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrMissingAPIKey is returned when a required credential is absent
	// from the environment file.
	ErrMissingAPIKey = errors.New("api key is not configured")
	// ErrUnknownAction is returned when the model requests an action the
	// venue does not implement.
	ErrUnknownAction = errors.New("unknown action")
	// ErrOrderNotFound is returned when cancelling an unknown order.
	ErrOrderNotFound = errors.New("order not found")
	// ErrInvalidUser is returned for malformed user ids.
	ErrInvalidUser = errors.New("invalid user id")
)
