// Package archive frames the tar stream the orchestrator multiplexes to
// each worker's backend connection: one header per data source followed by
// its payload, the whole thing optionally lz4-compressed.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package archive

import (
	"archive/tar"
	"io"
	"time"

	"github.com/pierrec/lz4/v3"
)

// Writer frames successive tar members onto an underlying connection. The
// orchestrator pushes a member's payload across many small reads off the
// wire as chunks arrive, so header and body are separate calls: WriteHeader
// once, then Write repeatedly until size bytes have been written, then the
// next WriteHeader. Flush finishes the last member's block padding WITHOUT
// the end-of-archive footer - the advertised Content-Length counts header
// and padded payload per member only, so the two zero trailer blocks
// Close would append have no room in the stream. Close exists for
// callers framing a self-contained archive (a packed user image) where
// the footer is wanted.
type Writer interface {
	WriteHeader(name string, size int64) error
	Write(p []byte) (int, error)
	Flush() error
	Close() error
}

type tarWriter struct {
	tw *tar.Writer
}

// NewWriter returns a Writer for dst. useLZ4 selects the tar+lz4 format;
// otherwise plain tar.
func NewWriter(dst io.Writer, useLZ4 bool) Writer {
	if useLZ4 {
		lzw := lz4.NewWriter(dst)
		return &tarLZ4Writer{tw: tar.NewWriter(lzw), lzw: lzw}
	}
	return &tarWriter{tw: tar.NewWriter(dst)}
}

func header(name string, size int64) *tar.Header {
	return &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Size:     size,
		Mode:     0644,
		ModTime:  time.Unix(0, 0),
		Format:   tar.FormatUSTAR,
	}
}

func (w *tarWriter) WriteHeader(name string, size int64) error { return w.tw.WriteHeader(header(name, size)) }
func (w *tarWriter) Write(p []byte) (int, error)                { return w.tw.Write(p) }
func (w *tarWriter) Flush() error                                { return w.tw.Flush() }
func (w *tarWriter) Close() error                                { return w.tw.Close() }

type tarLZ4Writer struct {
	tw  *tar.Writer
	lzw *lz4.Writer
}

func (w *tarLZ4Writer) WriteHeader(name string, size int64) error {
	return w.tw.WriteHeader(header(name, size))
}
func (w *tarLZ4Writer) Write(p []byte) (int, error) { return w.tw.Write(p) }

func (w *tarLZ4Writer) Flush() error {
	if err := w.tw.Flush(); err != nil {
		return err
	}
	return w.lzw.Flush()
}

func (w *tarLZ4Writer) Close() error {
	if err := w.tw.Close(); err != nil {
		return err
	}
	return w.lzw.Close()
}

// Reader demuxes a worker backend's tar (or tar+lz4) response stream:
// the sysmap member first, then one member per output channel.
type Reader struct {
	tr *tar.Reader
}

func NewReader(src io.Reader, useLZ4 bool) *Reader {
	if useLZ4 {
		src = lz4.NewReader(src)
	}
	return &Reader{tr: tar.NewReader(src)}
}

// Next advances to the next member, returning its name and size, or
// io.EOF once the archive is exhausted.
func (r *Reader) Next() (name string, size int64, err error) {
	hdr, err := r.tr.Next()
	if err != nil {
		return "", 0, err
	}
	return hdr.Name, hdr.Size, nil
}

func (r *Reader) Read(p []byte) (int, error) { return r.tr.Read(p) }

const blockSize = 512

// MemberSize returns the number of bytes a tar member carrying
// contentLength payload bytes occupies on the wire: one USTAR header
// block plus the payload padded up to the next block boundary. Used to
// precompute a worker's outbound Content-Length before any byte is sent.
func MemberSize(contentLength int64) int64 {
	payload := contentLength
	if rem := payload % blockSize; rem != 0 {
		payload += blockSize - rem
	}
	return blockSize + payload
}
