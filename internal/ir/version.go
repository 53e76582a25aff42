package ir

// Version constants for persisted formats and the engine.
const (
	// InstanceFormatVersion is written on the root element of instance and
	// savepoint documents.
	InstanceFormatVersion = "1"

	// EngineVersion is the formwalk engine version.
	EngineVersion = "0.1.0"
)
