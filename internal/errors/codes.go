package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrUnsupported     ErrorCode = "unsupported_platform"
	ErrPanic           ErrorCode = "unexpected_panic"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"
	ErrInvalidCapacity ErrorCode = "invalid_capacity"
	ErrInvalidMode     ErrorCode = "invalid_mode"
	ErrInvalidDevice   ErrorCode = "invalid_device"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"
	ErrAlreadyRunning ErrorCode = "already_running"

	// Pipeline errors
	ErrChannelClosed ErrorCode = "channel_closed"
	ErrChannelBroken ErrorCode = "channel_broken"
	ErrHandshake     ErrorCode = "handshake_failed"
	ErrSpawnFailed   ErrorCode = "spawn_failed"

	// Application errors
	ErrInitApp   ErrorCode = "init_app_failed"
	ErrMainLoop  ErrorCode = "main_loop_failed"
	ErrOperation ErrorCode = "operation_failed"
	ErrTimeout   ErrorCode = "operation_timeout"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:        "Internal error occurred",
	ErrInvalidArgument: "Invalid argument provided",
	ErrUnsupported:     "Platform not supported",
	ErrPanic:           "Unexpected failure",
	ErrInvalidConfig:   "Invalid configuration",
	ErrReadConfig:      "Failed to read configuration",
	ErrBindFlags:       "Failed to bind flags",
	ErrInvalidInterval: "Invalid interval value",
	ErrInvalidCapacity: "Invalid capacity value",
	ErrInvalidMode:     "Invalid mode",
	ErrInvalidDevice:   "Invalid device class",
	ErrInvalidLogLevel: "Invalid log level",
	ErrInitFailed:      "Initialization failed",
	ErrShutdownFailed:  "Shutdown failed",
	ErrAlreadyRunning:  "Another instance is already running",
	ErrChannelClosed:   "Channel closed",
	ErrChannelBroken:   "Channel broken",
	ErrHandshake:       "Process handshake failed",
	ErrSpawnFailed:     "Failed to spawn process",
	ErrInitApp:         "Failed to initialize application",
	ErrMainLoop:        "Error in main loop",
	ErrOperation:       "Operation failed",
	ErrTimeout:         "Operation timed out",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
