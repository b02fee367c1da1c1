// Package cos provides common low-level types and utilities shared across zvmd.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/NVIDIA/zvmd/cmn/nlog"
)

// Error kinds from the submission surface down through the planner and
// orchestrator (see httpapi status mapping). None of these leak to the
// caller unwrapped - the HTTP layer renders them into a response.
type (
	ErrConfigParse struct{ msg string }

	ErrBadRequest       struct{ msg string }
	ErrConfigTooLarge   struct{ limit int64 }
	ErrTemplateTooLarge struct{ limit int64 }
	ErrUnprocessable    struct{ msg string }

	ErrClientTimeout    struct{}
	ErrClientDisconnect struct{ msg string }
	ErrNoCapacity       struct{ want, got int }
	ErrBackend          struct {
		Status int
		Reason string
		Body   string
	}
	ErrPut struct {
		Path   string
		Status int
	}
	ErrUnknownChannel struct{ Device string }
)

func NewErrConfigParse(format string, a ...any) *ErrConfigParse {
	return &ErrConfigParse{fmt.Sprintf(format, a...)}
}

func (e *ErrConfigParse) Error() string { return e.msg }

func IsErrConfigParse(err error) bool {
	var target *ErrConfigParse
	return errors.As(err, &target)
}

func NewErrBadRequest(format string, a ...any) *ErrBadRequest {
	return &ErrBadRequest{fmt.Sprintf(format, a...)}
}
func (e *ErrBadRequest) Error() string { return e.msg }

func NewErrConfigTooLarge(limit int64) *ErrConfigTooLarge { return &ErrConfigTooLarge{limit} }
func (e *ErrConfigTooLarge) Error() string {
	return fmt.Sprintf("config exceeds maximum size of %d bytes", e.limit)
}

func NewErrTemplateTooLarge(limit int64) *ErrTemplateTooLarge { return &ErrTemplateTooLarge{limit} }
func (e *ErrTemplateTooLarge) Error() string {
	return fmt.Sprintf("open-with template exceeds maximum size of %d bytes", e.limit)
}

func NewErrUnprocessable(format string, a ...any) *ErrUnprocessable {
	return &ErrUnprocessable{fmt.Sprintf(format, a...)}
}
func (e *ErrUnprocessable) Error() string { return e.msg }

func (*ErrClientTimeout) Error() string { return "client timeout" }

func NewErrClientDisconnect(format string, a ...any) *ErrClientDisconnect {
	return &ErrClientDisconnect{fmt.Sprintf(format, a...)}
}
func (e *ErrClientDisconnect) Error() string { return e.msg }

func NewErrNoCapacity(want, got int) *ErrNoCapacity { return &ErrNoCapacity{want, got} }
func (e *ErrNoCapacity) Error() string {
	return fmt.Sprintf("insufficient backend capacity: need %d, got %d", e.want, e.got)
}

func (e *ErrBackend) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Reason, e.Body)
}

func (e *ErrPut) Error() string {
	return fmt.Sprintf("PUT %s failed with status %d", e.Path, e.Status)
}

func (e *ErrUnknownChannel) Error() string {
	return fmt.Sprintf("channel %q not declared for this worker", e.Device)
}

func IsErrUnknownChannel(err error) bool {
	var target *ErrUnknownChannel
	return errors.As(err, &target)
}

// Errs is a capped multi-error accumulator: duplicates (by message) are
// coalesced and only the first maxErrs distinct errors are retained.
type Errs struct {
	errs []error
	mu   sync.Mutex
}

const maxErrs = 8

func (e *Errs) Add(err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, added := range e.errs {
		if added.Error() == err.Error() {
			return
		}
	}
	if len(e.errs) < maxErrs {
		e.errs = append(e.errs, err)
	}
}

func (e *Errs) Cnt() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.errs)
}

func (e *Errs) JoinErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.errs) == 0 {
		return nil
	}
	return errors.Join(e.errs...)
}

const fatalPrefix = "FATAL ERROR: "

// ExitLogf logs a fatal startup error and terminates the process - used by
// cmd/zvmd for configuration and listener failures that have no recovery
// short of a restart.
func ExitLogf(f string, a ...any) {
	msg := fmt.Sprintf(fatalPrefix+f, a...)
	nlog.ErrorDepth(1, msg)
	nlog.Flush()
	os.Exit(1)
}
