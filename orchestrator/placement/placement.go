// Package placement resolves ring hosts for a worker and opens its backend
// execute connection, classifying the Expect:100-continue handshake before
// the orchestrator commits to streaming a worker's tar body. The handshake
// runs over a raw socket: net/http's Transport handles Expect:100-continue
// automatically and doesn't give the caller a synchronous look at the
// informational response before it starts consuming the request body,
// and the driver must decide per host whether to stream at all.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package placement

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/textproto"
	"sync"

	cuckoo "github.com/seiflotfy/cuckoofilter"

	"github.com/NVIDIA/zvmd/core"
)

// ErrorLimiter remembers hosts that recently answered 507 Insufficient
// Storage so later placement attempts skip them without a fresh
// round-trip. Backed by a cuckoo filter: approximate membership over a
// bounded set of host keys is all this needs.
type ErrorLimiter struct {
	mu     sync.Mutex
	filter *cuckoo.Filter
}

func NewErrorLimiter() *ErrorLimiter {
	return &ErrorLimiter{filter: cuckoo.NewFilter(4096)}
}

func hostKey(h core.Host) []byte { return []byte(fmt.Sprintf("%s:%d/%s", h.IP, h.Port, h.Device)) }

func (l *ErrorLimiter) Limit(h core.Host) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.filter.InsertUnique(hostKey(h))
}

func (l *ErrorLimiter) IsLimited(h core.Host) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filter.Lookup(hostKey(h))
}

// Conn is one worker's backend execute connection, past the handshake.
type Conn struct {
	Host   core.Host
	Worker *core.Worker

	netConn net.Conn
	bw      *bufio.Writer
	br      *bufio.Reader

	// Resp is set when the handshake already produced a final response
	// (a 2xx with nothing to stream, or a 4xx to surface verbatim) -
	// Proceed is false in that case and the driver must not write a body.
	Resp    *http.Response
	Proceed bool
	Failed  bool
}

func (c *Conn) Write(p []byte) (int, error) {
	if c.Failed {
		return len(p), nil
	}
	n, err := c.bw.Write(p)
	if err != nil {
		c.Failed = true
	}
	return n, err
}

// FinalResponse flushes any buffered body bytes and blocks for the
// backend's final response.
func (c *Conn) FinalResponse() (*http.Response, error) {
	if c.Resp != nil {
		return c.Resp, nil
	}
	if err := c.bw.Flush(); err != nil {
		return nil, err
	}
	resp, err := http.ReadResponse(c.br, nil)
	if err != nil {
		return nil, err
	}
	c.Resp = resp
	return resp, nil
}

func (c *Conn) Close() error { return c.netConn.Close() }

// Dial opens a raw connection to host, writes the execute request line and
// headers with Expect: 100-continue and the precomputed Content-Length,
// and classifies the response:
//
//   - 100 Continue      -> Proceed=true, ready for the tar body
//   - 2xx               -> Proceed=false, Resp set, nothing to stream
//   - 507                -> error, caller should error-limit host and retry
//   - 4xx (client error) -> Proceed=false, Resp set (surfaced verbatim)
//   - anything else      -> error, caller retries the next host
func Dial(ctx context.Context, host core.Host, method, path string, headers http.Header, contentLength int64) (*Conn, error) {
	d := net.Dialer{}
	netConn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", host.IP, host.Port))
	if err != nil {
		return nil, err
	}
	c := &Conn{Host: host, netConn: netConn, bw: bufio.NewWriter(netConn), br: bufio.NewReader(netConn)}

	req, err := http.NewRequest(method, path, nil)
	if err != nil {
		c.Close()
		return nil, err
	}
	req.Header = headers.Clone()
	req.Header.Set("Expect", "100-continue")
	req.ContentLength = contentLength
	req.Header.Set("Content-Length", fmt.Sprintf("%d", contentLength))

	if err := req.Write(c.bw); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.bw.Flush(); err != nil {
		c.Close()
		return nil, err
	}

	tp := textproto.NewReader(c.br)
	line, err := tp.ReadLine()
	if err != nil {
		c.Close()
		return nil, err
	}
	status, err := parseStatusCode(line)
	if err != nil {
		c.Close()
		return nil, err
	}

	switch {
	case status == http.StatusContinue:
		// a bare blank line terminates the 100-continue informational response
		if _, err := tp.ReadMIMEHeader(); err != nil {
			c.Close()
			return nil, err
		}
		c.Proceed = true
		return c, nil
	case status == http.StatusInsufficientStorage:
		drainHeaders(tp)
		c.Close()
		return nil, &ErrInsufficientStorage{Host: host}
	case status >= 200 && status < 300 || status >= 400 && status < 500:
		hdr, err := tp.ReadMIMEHeader()
		if err != nil {
			c.Close()
			return nil, err
		}
		c.Resp = &http.Response{
			Status:     line,
			StatusCode: status,
			Proto:      "HTTP/1.1",
			Header:     http.Header(hdr),
			Body:       io.NopCloser(c.br),
			Request:    req,
		}
		return c, nil
	default:
		drainHeaders(tp)
		c.Close()
		return nil, fmt.Errorf("placement: unexpected status %d from %s", status, host.IP)
	}
}

func drainHeaders(tp *textproto.Reader) { tp.ReadMIMEHeader() }

// ErrInsufficientStorage signals a 507 response during the handshake; the
// caller error-limits Host and tries the next ring candidate.
type ErrInsufficientStorage struct{ Host core.Host }

func (e *ErrInsufficientStorage) Error() string {
	return fmt.Sprintf("507 insufficient storage at %s:%d", e.Host.IP, e.Host.Port)
}

func parseStatusCode(line string) (int, error) {
	var proto string
	var code int
	if _, err := fmt.Sscanf(line, "%s %d", &proto, &code); err != nil {
		return 0, fmt.Errorf("placement: malformed status line %q", line)
	}
	return code, nil
}
