package domain

import "errors"

// Contract errors. Tool-level failures (unknown tool, bad arguments, search
// unavailable) never tear down a session; the dispatcher converts them into
// in-band error results. Only transport and configuration errors are fatal.
var (
	// ErrDuplicateTool is returned when registering a tool name twice.
	ErrDuplicateTool = errors.New("tool already registered")

	// ErrUnknownTool is returned when resolving a name with no registration.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrSearchUnavailable marks search backend failures so the tool layer
	// can narrate unavailability instead of failing the session.
	ErrSearchUnavailable = errors.New("search backend unavailable")

	// ErrMissingConfig is returned by config validation for absent required
	// settings; fatal before the server starts.
	ErrMissingConfig = errors.New("missing required configuration")
)
