// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package logging provides the leveled logger shared by the jacobian packages.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
)

// Level controls which messages a Logger emits.
type Level int

const (
	// Noop no output is generated.
	Noop Level = iota
	// Error report structural violations and evaluator failures.
	Error
	// Warning report numeric degeneracies such as guarded division by zero.
	Warning
	// Info report coloring cache misses and checker summaries.
	Info
	// Verbose report per-evaluation details.
	Verbose
	// Debug report every scattered entry and seed.
	Debug
)

var levelNames = [...]string{"", "ERROR", "WARNING", "INFO", "VERBOSE", "DEBUG"}

func (l Level) String() string {
	if l <= Noop || int(l) >= len(levelNames) {
		return ""
	}
	return levelNames[l]
}

// Logger handles diagnostic output.
// Note the writer must be thread-safe when a Logger is shared between functions.
// A nil *Logger is valid and discards everything.
type Logger struct {
	Level Level
	Msg   io.Writer // Writer to output log messages, os.Stderr when nil.
	count atomic.Int64
}

// New returns a Logger writing messages up to level into w.
func New(level Level, w io.Writer) *Logger {
	return &Logger{Level: level, Msg: w}
}

// Enable reports whether messages of the given level are emitted.
func (l *Logger) Enable(level Level) bool {
	return l != nil && level > Noop && l.Level >= level
}

// Log writes a formatted message at the given level.
func (l *Logger) Log(level Level, format string, a ...any) {
	if !l.Enable(level) {
		return
	}
	l.count.Add(1)
	w := l.Msg
	if w == nil {
		w = os.Stderr
	}
	if len(a) > 0 {
		_, _ = fmt.Fprintf(w, "[%s] "+format+"\n", append([]any{level}, a...)...)
	} else {
		_, _ = fmt.Fprintf(w, "[%s] %s\n", level, format)
	}
}

// Node writes a named record with <key:value> attributes, e.g.
//
//	[WARNING] DivideByZero <exp:x/y>
func (l *Logger) Node(level Level, name string, attrs ...any) {
	if !l.Enable(level) {
		return
	}
	format := name
	for i := 0; i+1 < len(attrs); i += 2 {
		format += fmt.Sprintf(" <%v:%v>", attrs[i], attrs[i+1])
	}
	l.Log(level, "%s", format)
}

// Count returns the number of messages emitted so far.
func (l *Logger) Count() int64 {
	if l == nil {
		return 0
	}
	return l.count.Load()
}
