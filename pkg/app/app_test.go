// SPDX-FileCopyrightText: 2026 minitcp contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package app

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/dtn7/minitcp/pkg/segment"
	"github.com/dtn7/minitcp/pkg/tcp"
)

func TestEcho(t *testing.T) {
	peer, _ := newLoopbackPeer(t, Echo{}.Attach)

	peer.send(segment.FlagSyn, 100, 0, nil)
	headers, _ := peer.take()
	if len(headers) != 1 || headers[0].Flags != segment.FlagSyn|segment.FlagAck {
		t.Fatalf("expected SYN+ACK, got %v", headers)
	}
	isn := headers[0].SeqNo

	peer.send(segment.FlagAck, 101, isn+1, []byte("ping"))

	headers, payloads := peer.take()
	if len(headers) != 2 {
		t.Fatalf("expected ACK and echo, got %v", headers)
	}
	if headers[0].AckNo != 105 || len(payloads[0]) != 0 {
		t.Fatalf("expected ACK for 105, got %v", headers[0])
	}
	if string(payloads[1]) != "ping" || headers[1].SeqNo != isn+1 {
		t.Fatalf("unexpected echo %v %q", headers[1], payloads[1])
	}

	peer.send(segment.FlagFin|segment.FlagAck, 105, isn+5, nil)

	headers, _ = peer.take()
	if len(headers) != 2 {
		t.Fatalf("expected ACK and FIN, got %v", headers)
	}
	if headers[0].Flags != segment.FlagAck || headers[0].AckNo != 106 {
		t.Fatalf("expected ACK for 106, got %v", headers[0])
	}
	if headers[1].Flags != segment.FlagFin || headers[1].SeqNo != isn+5 {
		t.Fatalf("expected FIN, got %v", headers[1])
	}
}

func TestBuffer(t *testing.T) {
	var buffers []*Buffer
	peer, _ := newLoopbackPeer(t, BufferApp(8, func(_ *tcp.Connection, buf *Buffer) {
		buffers = append(buffers, buf)
	}))

	peer.send(segment.FlagSyn, 0, 0, nil)
	if len(buffers) != 1 {
		t.Fatalf("created %d buffers, expected 1", len(buffers))
	}
	buf := buffers[0]

	p := make([]byte, 16)
	if n, err := buf.Read(p); n != 0 || err != nil {
		t.Fatalf("empty open buffer returned %d, %v", n, err)
	}

	peer.send(segment.FlagAck, 1, 0, []byte("hello"))

	select {
	case <-buf.Notify():
	default:
		t.Fatal("no notification for delivered data")
	}

	// Three of the six bytes fit.
	peer.send(segment.FlagAck, 6, 0, []byte("world!"))
	if buf.Len() != 8 || buf.Lost() != 3 {
		t.Fatalf("buffer holds %d bytes, lost %d", buf.Len(), buf.Lost())
	}

	n, err := buf.Read(p)
	if err != nil {
		t.Fatal(err)
	}
	if string(p[:n]) != "hellowor" {
		t.Fatalf("read %q", p[:n])
	}

	peer.send(segment.FlagFin, 12, 0, nil)
	if _, err := buf.Read(p); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestBufferReadAll(t *testing.T) {
	var buf *Buffer
	peer, _ := newLoopbackPeer(t, BufferApp(64, func(_ *tcp.Connection, b *Buffer) { buf = b }))

	peer.send(segment.FlagSyn, 0, 0, nil)
	peer.send(segment.FlagAck, 1, 0, []byte("lorem "))
	peer.send(segment.FlagAck, 7, 0, []byte("ipsum"))
	peer.send(segment.FlagFin, 12, 0, nil)

	data, err := io.ReadAll(buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "lorem ipsum" {
		t.Fatalf("read %q", data)
	}
}

func TestLogger(t *testing.T) {
	peer, dispatcher := newLoopbackPeer(t, Logger{PreviewLen: 4}.Attach)

	peer.send(segment.FlagSyn, 0, 0, nil)
	peer.send(segment.FlagAck, 1, 0, []byte("a longer message"))
	peer.send(segment.FlagFin, 17, 0, nil)

	headers, _ := peer.take()
	if len(headers) != 3 {
		t.Fatalf("expected SYN+ACK and two ACKs, got %v", headers)
	}
	if headers[2].AckNo != 18 {
		t.Fatalf("expected ACK for 18, got %v", headers[2])
	}

	if err := dispatcher.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestBufferWriteTo(t *testing.T) {
	bufChan := make(chan *Buffer, 1)
	peer, _ := newLoopbackPeer(t, BufferApp(16, func(_ *tcp.Connection, b *Buffer) { bufChan <- b }))

	peer.send(segment.FlagSyn, 0, 0, nil)
	buf := <-bufChan

	type result struct {
		data string
		err  error
	}
	resultChan := make(chan result)

	go func() {
		var out bytes.Buffer
		_, err := io.Copy(&out, buf)
		resultChan <- result{out.String(), err}
	}()

	peer.send(segment.FlagAck, 1, 0, []byte("first "))
	peer.send(segment.FlagAck, 7, 0, []byte("second"))
	peer.send(segment.FlagFin, 13, 0, nil)

	select {
	case res := <-resultChan:
		if res.err != nil {
			t.Fatal(res.err)
		}
		if res.data != "first second" {
			t.Fatalf("copied %q", res.data)
		}

	case <-time.After(time.Second):
		t.Fatal("copy did not finish after end of stream")
	}
}
