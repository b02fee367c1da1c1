// Package nlog is the zvmd logger: level-gated, timestamped, with optional
// file output and rotation by size.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type severity int32

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

var sevChar = [...]byte{sevInfo: 'I', sevWarn: 'W', sevErr: 'E'}

// MaxSize is the rotation threshold for the log file, in bytes.
var MaxSize int64 = 64 * 1024 * 1024

var (
	mu           sync.Mutex
	file         *os.File
	written      int64
	logDir       string
	toStderr     = true
	alsoToStderr bool
	minSeverity  atomic.Int32
)

// SetMirrorStderr controls whether log lines are additionally written to
// stderr when a log file is configured.
func SetMirrorStderr(v bool) { alsoToStderr = v }

// SetLogDir switches output from stderr to a rotating file under dir.
// An empty dir restores stderr-only logging.
func SetLogDir(dir string) error {
	mu.Lock()
	defer mu.Unlock()
	logDir = dir
	if dir == "" {
		toStderr = true
		return nil
	}
	f, err := newLogFile(dir)
	if err != nil {
		return err
	}
	if file != nil {
		file.Close()
	}
	file, written, toStderr = f, 0, false
	return nil
}

// SetVerbosity sets the minimum severity: 0=info, 1=warning, 2=error.
func SetVerbosity(v int) { minSeverity.Store(int32(v)) }

func newLogFile(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	name := fmt.Sprintf("zvmd.%s.log", time.Now().Format("20060102-150405"))
	return os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func log(sev severity, depth int, format string, args ...any) {
	if int32(sev) < minSeverity.Load() {
		return
	}
	line := format1(sev, depth+1, format, args...)
	mu.Lock()
	defer mu.Unlock()
	if toStderr || file == nil {
		os.Stderr.WriteString(line)
		return
	}
	n, _ := file.WriteString(line)
	written += int64(n)
	if alsoToStderr || sev >= sevErr {
		os.Stderr.WriteString(line)
	}
	if written >= MaxSize {
		rotate()
	}
}

// under mu
func rotate() {
	if logDir == "" {
		return
	}
	f, err := newLogFile(logDir)
	if err != nil {
		return
	}
	file.Close()
	file, written = f, 0
}

func format1(sev severity, depth int, format string, args ...any) string {
	var b strings.Builder
	b.WriteByte(sevChar[sev])
	b.WriteByte(' ')
	b.WriteString(time.Now().Format("15:04:05.000000"))
	b.WriteByte(' ')
	if _, fn, ln, ok := runtime.Caller(depth + 1); ok {
		if idx := strings.LastIndexByte(fn, filepath.Separator); idx >= 0 {
			fn = fn[idx+1:]
		}
		b.WriteString(fn)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(ln))
		b.WriteByte(' ')
	}
	if format == "" {
		fmt.Fprintln(&b, args...)
	} else {
		fmt.Fprintf(&b, format, args...)
		if !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func InfoDepth(depth int, args ...any)    { log(sevInfo, depth, "", args...) }
func Infoln(args ...any)                  { log(sevInfo, 0, "", args...) }
func Infof(format string, args ...any)    { log(sevInfo, 0, format, args...) }
func Warningln(args ...any)               { log(sevWarn, 0, "", args...) }
func Warningf(format string, args ...any) { log(sevWarn, 0, format, args...) }
func ErrorDepth(depth int, args ...any)   { log(sevErr, depth, "", args...) }
func Errorln(args ...any)                 { log(sevErr, 0, "", args...) }
func Errorf(format string, args ...any)   { log(sevErr, 0, format, args...) }

// Flush syncs the current log file to disk, if any.
func Flush() {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.Sync()
	}
}
