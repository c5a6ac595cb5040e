package ir

// Version constants recorded on every journaled dispatch.
const (
	// IRVersion is the value-model version.
	IRVersion = "1"

	// Version is the crossroads release.
	Version = "0.1.0"
)
