package log

// nullLogger is a logger that does nothing. Used in tests that construct
// servers/sessions/workers without caring about their log output.
type nullLogger struct{}

func (n nullLogger) Infof(format string, args ...interface{})  {}
func (n nullLogger) Warnf(format string, args ...interface{})  {}
func (n nullLogger) Errorf(format string, args ...interface{}) {}
func (n nullLogger) Debugf(format string, args ...interface{}) {}
func (n nullLogger) WithFields(fields Fields) Logger           { return n }

// NewNullLogger returns a logger that does nothing.
func NewNullLogger() Logger {
	return nullLogger{}
}
