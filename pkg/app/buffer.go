// SPDX-FileCopyrightText: 2026 minitcp contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package app

import (
	"io"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"

	"github.com/dtn7/minitcp/pkg/tcp"
)

// Buffer stores a Connection's inbound stream in a fixed-size ring buffer, to be consumed through io.Reader.
// Delivered bytes exceeding the free space are discarded; they were already acknowledged.
type Buffer struct {
	mutex  sync.Mutex
	ring   *ringbuffer.RingBuffer
	closed bool
	lost   int

	// notify receives a value whenever data or the end of stream arrives.
	notify chan struct{}
}

// NewBuffer creates a Buffer holding up to size bytes.
func NewBuffer(size int) *Buffer {
	return &Buffer{
		ring:   ringbuffer.New(size),
		notify: make(chan struct{}, 1),
	}
}

// BufferApp creates a new Buffer for each accepted Connection and hands it to the callback.
func BufferApp(size int, accepted func(*tcp.Connection, *Buffer)) func(*tcp.Connection) {
	return func(conn *tcp.Connection) {
		buf := NewBuffer(size)
		conn.RegisterSink(buf)

		if accepted != nil {
			accepted(conn, buf)
		}
	}
}

func (b *Buffer) OnData(conn *tcp.Connection, data []byte) {
	b.mutex.Lock()
	n, _ := b.ring.Write(data)
	if n < len(data) {
		b.lost += len(data) - n

		log.WithFields(log.Fields{
			"flow":      conn.Key().String(),
			"discarded": len(data) - n,
		}).Warn("Receive buffer is full, discarding data")
	}
	b.mutex.Unlock()

	b.signal()
}

func (b *Buffer) OnClose(_ *tcp.Connection) {
	b.mutex.Lock()
	b.closed = true
	b.mutex.Unlock()

	b.signal()
}

func (b *Buffer) signal() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Read buffered bytes. It returns zero bytes without an error if the buffer is empty but the stream is still open,
// and io.EOF after the peer closed its stream and everything was read.
func (b *Buffer) Read(p []byte) (n int, err error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.ring.IsEmpty() {
		if b.closed {
			return 0, io.EOF
		}
		return 0, nil
	}

	return b.ring.Read(p)
}

// WriteTo copies the stream to w, blocking until the peer closed its stream and everything was written.
func (b *Buffer) WriteTo(w io.Writer) (n int64, err error) {
	p := make([]byte, 4096)
	for {
		m, readErr := b.Read(p)
		if m > 0 {
			written, writeErr := w.Write(p[:m])
			n += int64(written)
			if writeErr != nil {
				return n, writeErr
			}
		}

		switch {
		case readErr == io.EOF:
			return n, nil
		case readErr != nil:
			return n, readErr
		case m == 0:
			<-b.notify
		}
	}
}

// Notify returns a channel signaling the arrival of data or the end of stream.
func (b *Buffer) Notify() <-chan struct{} {
	return b.notify
}

// Len returns the amount of unread bytes.
func (b *Buffer) Len() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return b.ring.Length()
}

// Lost returns the amount of bytes discarded due to a full buffer.
func (b *Buffer) Lost() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return b.lost
}
