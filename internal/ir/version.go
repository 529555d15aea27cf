package ir

// Version constants for the record layout and the wrapper.
const (
	// LayoutVersion is the persisted record layout version.
	LayoutVersion = "1"

	// WrapperVersion is the lutwrap release version.
	WrapperVersion = "0.1.0"
)
