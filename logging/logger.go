// Package logging implements the four-level Logger collaborator contract
// of spec §6 over the standard library's log.Logger — the same primitive
// the teacher reaches for directly, generalized with the level discipline
// the contract requires.
package logging

import (
	"log"
	"os"

	"github.com/kestrelnet/wsresp/api"
)

// Level is a minimum severity threshold; messages below it are dropped.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Logger is a level-gated wrapper around *log.Logger, safe for concurrent
// use from any goroutine (log.Logger already serializes its Output calls).
type Logger struct {
	min Level
	l   *log.Logger
}

// New constructs a Logger writing to os.Stderr with the standard
// date/time/microsecond flags, at the given minimum level.
func New(min Level) *Logger {
	return &Logger{min: min, l: log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)}
}

func (lg *Logger) log(level Level, prefix, format string, args ...any) {
	if level < lg.min {
		return
	}
	lg.l.Printf(prefix+format, args...)
}

func (lg *Logger) Debugf(format string, args ...any) { lg.log(LevelDebug, "DEBUG ", format, args...) }
func (lg *Logger) Infof(format string, args ...any)  { lg.log(LevelInfo, "INFO ", format, args...) }
func (lg *Logger) Warnf(format string, args ...any)  { lg.log(LevelWarn, "WARN ", format, args...) }
func (lg *Logger) Errorf(format string, args ...any) { lg.log(LevelError, "ERROR ", format, args...) }

var _ api.Logger = (*Logger)(nil)
