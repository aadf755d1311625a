package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown plugin or field type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrDuplicateSource indicates two sources share an ID.
	ErrDuplicateSource = errors.New("duplicate source id")

	// ErrInvalidMetadata indicates plugin metadata failed schema validation.
	ErrInvalidMetadata = errors.New("invalid plugin metadata")

	// ErrSecretUnresolved indicates a secret name could not be resolved
	// to a credential.
	ErrSecretUnresolved = errors.New("secret unresolved")

	// ErrRealtimeUnsupported indicates a source requested realtime mode
	// but its adapter only supports polling.
	ErrRealtimeUnsupported = errors.New("realtime not supported by adapter")

	// ErrEngineRunning indicates the engine is already started.
	ErrEngineRunning = errors.New("engine already running")

	// ErrNotConnected indicates a realtime operation on a closed connection.
	ErrNotConnected = errors.New("not connected")
)
