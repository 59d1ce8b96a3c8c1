/*
 * MIT License
 *
 * Copyright (c) 2021 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package logger is a thin, leveled wrapper around logrus shared by the
// daemon and the worker runtime. Fields and WithFields attach structured
// context to a line; the daemon and runtime log plain formatted messages.
package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

type Logger interface {
	WithFields(f Fields) Logger
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type log struct {
	e *logrus.Entry
}

// New builds a root Logger at the given Level, writing JSON-less text lines
// to stderr — logrus's default handler behavior.
func New(lvl Level) Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(lvl.logrus())
	return &log{e: logrus.NewEntry(l)}
}

func (l *log) WithFields(f Fields) Logger {
	return &log{e: l.e.WithFields(f.Logrus())}
}

func (l *log) Debug(args ...interface{}) { l.e.Debug(args...) }
func (l *log) Info(args ...interface{})  { l.e.Info(args...) }
func (l *log) Warn(args ...interface{})  { l.e.Warn(args...) }
func (l *log) Error(args ...interface{}) { l.e.Error(args...) }

func (l *log) Debugf(format string, args ...interface{}) { l.e.Debugf(format, args...) }
func (l *log) Infof(format string, args ...interface{})  { l.e.Infof(format, args...) }
func (l *log) Warnf(format string, args ...interface{})  { l.e.Warnf(format, args...) }
func (l *log) Errorf(format string, args ...interface{}) { l.e.Errorf(format, args...) }

// Discard is a Logger that drops every line, used as the zero-value
// fallback when a component is constructed without an explicit logger.
var Discard Logger = &log{e: logrus.NewEntry(func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(logrus.PanicLevel)
	return l
}())}
