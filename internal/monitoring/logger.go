// Package monitoring holds the diagnostic logging hooks used by the
// reconciliation packages.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Warnf logs a recoverable per-item fault through Logf. Region-level
// failures that demote a nucleus instead of aborting the image go here.
func Warnf(format string, v ...interface{}) {
	Logf("[warn] "+format, v...)
}

// Mute silences Logf and returns a function restoring the previous logger.
// Intended for tests: defer monitoring.Mute()().
func Mute() func() {
	prev := Logf
	SetLogger(nil)
	return func() { Logf = prev }
}
