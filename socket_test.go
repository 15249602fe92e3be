package netcore

import (
	"crypto/md5"
	"crypto/rand"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/valyala/bytebufferpool"
)

// echoConn drives a StreamSocket's non-blocking read/write protocol from an
// event-driven handler: read until EAGAIN, write until EAGAIN, and keep a
// running MD5 of whatever passed through.
type echoConn struct {
	sock   *StreamSocket
	digest func([]byte)
	echo   bool

	pending []byte
}

func (c *echoConn) OnHostAddressEvent(HostAddressEvent) {}

func (c *echoConn) OnSocketEvent(ev SocketEvent) {
	switch ev.Flag {
	case EventRead:
		c.drainRead()
	case EventWrite:
		c.drainWrite()
	}
}

func (c *echoConn) drainRead() {
	buf := make([]byte, 64*1024)
	for {
		n, err := c.sock.Read(buf)
		if n > 0 {
			c.digest(buf[:n])
			if c.echo {
				c.pending = append(c.pending, buf[:n]...)
				c.drainWrite()
			}
		}
		if err != nil {
			return
		}
	}
}

func (c *echoConn) drainWrite() {
	for len(c.pending) > 0 {
		n, err := c.sock.Write(c.pending)
		if n > 0 {
			c.pending = c.pending[n:]
		}
		if err != nil {
			return
		}
	}
}

// TestEchoDuplexIntegrity is scenario (a): a 1MiB random payload sent
// client->server, echoed back, with both sides' MD5s compared.
func TestEchoDuplexIntegrity(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	go loop.Run()
	defer loop.Stop()

	ln, err := Listen(loop, "127.0.0.1", 0)
	require.NoError(t, err)
	defer ln.Close()

	addr, err := ln.Addr()
	require.NoError(t, err)

	serverDone := make(chan struct{})
	serverSum := md5.New()

	ln.SetEventHandler(HandlerFunc{
		Socket: func(ev SocketEvent) {
			if ev.Flag != EventConnection {
				return
			}
			srv, err := ln.Accept()
			if err != nil {
				return
			}
			se := &echoConn{sock: srv, echo: true, digest: func(b []byte) { serverSum.Write(b) }}
			srv.SetEventHandler(se)
		},
	})

	payload := bytebufferpool.Get()
	defer bytebufferpool.Put(payload)
	payload.B = make([]byte, 1<<20)
	_, err = rand.Read(payload.B)
	require.NoError(t, err)

	clientSum := md5.New()
	clientReceived := 0

	client, err := NewStreamSocket(loop)
	require.NoError(t, err)

	ce := &echoConn{sock: client, digest: func(b []byte) {
		clientSum.Write(b)
		clientReceived += len(b)
		if clientReceived >= len(payload.B) {
			close(serverDone)
		}
	}}

	client.SetEventHandler(HandlerFunc{
		Socket: func(ev SocketEvent) {
			switch ev.Flag {
			case EventConnection:
				require.NoError(t, ev.Err)
				ce.pending = append([]byte(nil), payload.B...)
				ce.drainWrite()
			case EventRead, EventWrite:
				ce.OnSocketEvent(ev)
			}
		},
	})

	require.NoError(t, client.Connect(addr.Addr().String(), strconv.Itoa(int(addr.Port()))))

	select {
	case <-serverDone:
	case <-time.After(10 * time.Second):
		t.Fatal("echo did not complete in time")
	}

	require.Equal(t, serverSum.Sum(nil), clientSum.Sum(nil))
}
