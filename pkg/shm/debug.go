/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package shm

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/valyala/bytebufferpool"
)

type logger struct {
	name      string
	out       io.Writer
	callDepth int
}

var (
	level atomic.Int32

	magenta = string([]byte{27, 91, 57, 53, 109}) // Trace
	green   = string([]byte{27, 91, 57, 50, 109}) // Debug
	blue    = string([]byte{27, 91, 57, 52, 109}) // Info
	yellow  = string([]byte{27, 91, 57, 51, 109}) // Warn
	red     = string([]byte{27, 91, 57, 49, 109}) // Error
	reset   = string([]byte{27, 91, 48, 109})

	colors = []string{
		magenta,
		green,
		blue,
		yellow,
		red,
	}

	levelName = []string{
		"Trace",
		"Debug",
		"Info",
		"Warn",
		"Error",
	}
)

// Log levels accepted by SetLogLevel and MEMMAP_LOG_LEVEL.
const (
	LevelTrace = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelNoPrint
)

const logLevelEnv = "MEMMAP_LOG_LEVEL"

func init() {
	level.Store(LevelWarn)
	if v := os.Getenv(logLevelEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= LevelTrace && n <= LevelNoPrint {
			level.Store(int32(n))
		}
	}
}

// SetLogLevel changes the level of every memmap logger. The default level is
// Warn; the process env `MEMMAP_LOG_LEVEL` also sets it.
func SetLogLevel(l int) {
	if l >= LevelTrace && l <= LevelNoPrint {
		level.Store(int32(l))
	}
}

// LogLevel returns the current log level.
func LogLevel() int {
	return int(level.Load())
}

func newLogger(name string, out io.Writer) *logger {
	if out == nil {
		out = os.Stderr
	}
	return &logger{
		name:      name,
		out:       out,
		callDepth: 3,
	}
}

func (l *logger) enabled(lv int) bool {
	return int(level.Load()) <= lv
}

func (l *logger) logf(lv int, format string, a ...interface{}) {
	if !l.enabled(lv) {
		return
	}
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	l.prefix(buf, lv)
	_, _ = fmt.Fprintf(buf, format, a...)
	_, _ = buf.WriteString(reset)
	_ = buf.WriteByte('\n')
	if _, err := l.out.Write(buf.B); err != nil {
		fmt.Fprintf(os.Stderr, "memmap logger write failed: %v\n", err)
	}
}

func (l *logger) errorf(format string, a ...interface{}) {
	l.logf(LevelError, format, a...)
}

func (l *logger) warnf(format string, a ...interface{}) {
	l.logf(LevelWarn, format, a...)
}

func (l *logger) infof(format string, a ...interface{}) {
	l.logf(LevelInfo, format, a...)
}

func (l *logger) debugf(format string, a ...interface{}) {
	l.logf(LevelDebug, format, a...)
}

func (l *logger) tracef(format string, a ...interface{}) {
	l.logf(LevelTrace, format, a...)
}

func (l *logger) prefix(buf *bytebufferpool.ByteBuffer, lv int) {
	_, _ = buf.WriteString(colors[lv])
	_, _ = buf.WriteString(levelName[lv])
	_ = buf.WriteByte(' ')
	buf.B = time.Now().AppendFormat(buf.B, "2006-01-02 15:04:05.999999")
	_ = buf.WriteByte(' ')
	_, _ = buf.WriteString(l.location())
	_ = buf.WriteByte(' ')
	_, _ = buf.WriteString(l.name)
	_ = buf.WriteByte(' ')
}

// location reports the caller of the level method (errorf, warnf, ...).
func (l *logger) location() string {
	_, file, line, ok := runtime.Caller(l.callDepth + 1)
	if !ok {
		file = "???"
		line = 0
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}
