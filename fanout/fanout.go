// Package fanout multiplexes a sequence of data sources onto many backend
// connections at once: each source's bytes are framed as one tar member
// per connection that wants it, written through a bounded per-connection
// queue so a slow backend never blocks the others. The connection set is
// fixed for the lifetime of a job - no dynamic registration.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package fanout

import (
	"context"
	"io"
	"sync"

	"github.com/NVIDIA/zvmd/archive"
)

// Sink is one fan-out destination: a tar framer over a backend connection,
// plus the failure flag the driver checks before writing. A failed
// connection is skipped; its siblings keep streaming.
type Sink struct {
	Writer archive.Writer
	Failed func() bool

	queue chan frame
	done  chan struct{}
	err   error
	wg    *sync.WaitGroup
}

type frame struct {
	kind    frameKind
	device  string
	size    int64
	payload []byte
}

type frameKind int

const (
	frameHeader frameKind = iota
	framePayload
	frameFin
)

// NewSink wraps w's tar framer in a bounded-queue sender goroutine; depth
// is the backpressure knob.
func NewSink(w archive.Writer, failed func() bool, depth int) *Sink {
	s := &Sink{Writer: w, Failed: failed, queue: make(chan frame, depth), done: make(chan struct{})}
	go s.run()
	return s
}

func (s *Sink) run() {
	defer close(s.done)
	for f := range s.queue {
		if s.err != nil || (s.Failed != nil && s.Failed()) {
			continue
		}
		var err error
		switch f.kind {
		case frameHeader:
			err = s.Writer.WriteHeader(f.device, f.size)
		case framePayload:
			_, err = s.Writer.Write(f.payload)
		case frameFin:
			// pad the last member to its block boundary; no
			// end-of-archive footer - the advertised Content-Length
			// doesn't cover one
			err = s.Writer.Flush()
		}
		if err != nil {
			s.err = err
		}
	}
}

func (s *Sink) header(device string, size int64) { s.queue <- frame{kind: frameHeader, device: device, size: size} }
func (s *Sink) payload(p []byte) {
	cp := make([]byte, len(p))
	copy(cp, p)
	s.queue <- frame{kind: framePayload, payload: cp}
}
func (s *Sink) finIfLast(isLast bool) {
	if isLast {
		s.queue <- frame{kind: frameFin}
	}
}

// Close drains the sink's queue and reports its first write error, if any.
func (s *Sink) Close() error {
	close(s.queue)
	<-s.done
	return s.err
}

// Source is one data source the driver streams through: a device name per
// fan-out target, a declared length, and a chunk iterator.
type Source struct {
	ContentLength int64
	Targets       []*Sink
	// Device returns the tar member name Targets[i] should use (usually
	// the fixed device the fan-out target was built for).
	Device func(i int) string
	// Last reports whether this is the final source attached to
	// Targets[i]'s connection, so its padding is flushed exactly once.
	Last func(i int) bool
	// Open returns the byte stream to copy; called once per source.
	Open func(ctx context.Context) (io.ReadCloser, error)
}

// Drive streams every source in order to its fan-out targets, one tar
// header per target followed by the shared payload chunks - a single
// ordered pass over the data sources. chunkSize bounds how much of the
// source is read before each broadcast write; onChunk is invoked with the
// running byte count so the caller can watch progress (read timeouts
// belong to the caller, via ctx).
func Drive(ctx context.Context, sources []*Source, chunkSize int, onChunk func(total int64)) error {
	buf := make([]byte, chunkSize)
	for _, src := range sources {
		rc, err := src.Open(ctx)
		if err != nil {
			return err
		}
		for i, sink := range src.Targets {
			sink.header(src.Device(i), src.ContentLength)
		}
		var transferred int64
		for {
			select {
			case <-ctx.Done():
				rc.Close()
				return ctx.Err()
			default:
			}
			n, rerr := rc.Read(buf)
			if n > 0 {
				transferred += int64(n)
				for _, sink := range src.Targets {
					sink.payload(buf[:n])
				}
				if onChunk != nil {
					onChunk(transferred)
				}
			}
			if rerr != nil {
				break
			}
		}
		rc.Close()
		for i, sink := range src.Targets {
			sink.finIfLast(src.Last(i))
		}
		if transferred < src.ContentLength {
			return &ErrUndersized{Want: src.ContentLength, Got: transferred}
		}
	}
	return nil
}

// ErrUndersized signals a data source that produced fewer bytes than its
// declared Content-Length; the caller surfaces it as a client disconnect.
type ErrUndersized struct{ Want, Got int64 }

func (e *ErrUndersized) Error() string {
	return "data source ended early"
}
