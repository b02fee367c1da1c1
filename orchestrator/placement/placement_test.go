/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package placement_test

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"

	"github.com/NVIDIA/zvmd/core"
	"github.com/NVIDIA/zvmd/orchestrator/placement"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// serveOnce accepts exactly one connection, reads its request, and writes
// raw back exactly as given, simulating a backend's handshake response.
func serveOnce(ln net.Listener, raw string) {
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	br := bufio.NewReader(conn)
	req, err := http.ReadRequest(br)
	if err == nil && req.Body != nil {
		io.Copy(io.Discard, req.Body)
	}
	conn.Write([]byte(raw))
}

func hostFor(ln net.Listener) core.Host {
	addr := ln.Addr().(*net.TCPAddr)
	return core.Host{IP: "127.0.0.1", Port: addr.Port, Device: "sdb1"}
}

var _ = Describe("Dial", func() {
	It("classifies a 100-continue handshake as Proceed", func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		defer ln.Close()
		go serveOnce(ln, "HTTP/1.1 100 Continue\r\n\r\n")

		c, err := placement.Dial(context.Background(), hostFor(ln), http.MethodPost, "/acc/cont/obj", http.Header{}, 0)
		Expect(err).NotTo(HaveOccurred())
		defer c.Close()
		Expect(c.Proceed).To(BeTrue())
		Expect(c.Resp).To(BeNil())
	})

	It("classifies a 2xx as a final response with nothing to stream", func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		defer ln.Close()
		go serveOnce(ln, "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello")

		c, err := placement.Dial(context.Background(), hostFor(ln), http.MethodPost, "/acc/cont/obj", http.Header{}, 0)
		Expect(err).NotTo(HaveOccurred())
		defer c.Close()
		Expect(c.Proceed).To(BeFalse())
		Expect(c.Resp).NotTo(BeNil())
		Expect(c.Resp.StatusCode).To(Equal(200))

		resp, err := c.FinalResponse()
		Expect(err).NotTo(HaveOccurred())
		body, _ := io.ReadAll(resp.Body)
		Expect(string(body)).To(Equal("hello"))
	})

	It("classifies a 4xx as a final response surfaced verbatim", func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		defer ln.Close()
		go serveOnce(ln, "HTTP/1.1 404 Not Found\r\nContent-Length: 9\r\n\r\nnot found")

		c, err := placement.Dial(context.Background(), hostFor(ln), http.MethodPost, "/acc/cont/obj", http.Header{}, 0)
		Expect(err).NotTo(HaveOccurred())
		defer c.Close()
		Expect(c.Proceed).To(BeFalse())
		Expect(c.Resp.StatusCode).To(Equal(404))
	})

	It("returns ErrInsufficientStorage on a 507 so the caller can error-limit the host", func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		defer ln.Close()
		go serveOnce(ln, "HTTP/1.1 507 Insufficient Storage\r\n\r\n")

		_, err = placement.Dial(context.Background(), hostFor(ln), http.MethodPost, "/acc/cont/obj", http.Header{}, 0)
		Expect(err).To(HaveOccurred())
		var insufficient *placement.ErrInsufficientStorage
		Expect(err).To(BeAssignableToTypeOf(insufficient))
	})

	It("returns a plain error on any other status so the caller retries the next host", func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		defer ln.Close()
		go serveOnce(ln, "HTTP/1.1 503 Service Unavailable\r\n\r\n")

		_, err = placement.Dial(context.Background(), hostFor(ln), http.MethodPost, "/acc/cont/obj", http.Header{}, 0)
		Expect(err).To(HaveOccurred())
		var insufficient *placement.ErrInsufficientStorage
		Expect(err).NotTo(BeAssignableToTypeOf(insufficient))
	})
})

var _ = Describe("ErrorLimiter", func() {
	It("remembers a limited host and leaves others unaffected", func() {
		l := placement.NewErrorLimiter()
		a := core.Host{IP: "10.0.0.1", Port: 6200, Device: "sdb1"}
		b := core.Host{IP: "10.0.0.2", Port: 6200, Device: "sdb1"}

		Expect(l.IsLimited(a)).To(BeFalse())
		l.Limit(a)
		Expect(l.IsLimited(a)).To(BeTrue())
		Expect(l.IsLimited(b)).To(BeFalse())
	})
})
