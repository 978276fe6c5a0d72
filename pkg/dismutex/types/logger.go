package types

// Logger is the logging surface threaded through every component, so
// users can plug their own implementation.
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})

	Warn(v ...interface{})
	Warnf(format string, v ...interface{})

	Error(v ...interface{})
	Errorf(format string, v ...interface{})

	Debug(v ...interface{})
	Debugf(format string, v ...interface{})

	// Enable or disable debug output, returning the new value.
	ToggleDebug(value bool) bool
}
