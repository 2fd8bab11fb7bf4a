package adb

// A scripted in-process stand-in for the adb server. Each expected client
// connection gets its own script; the library opens a fresh connection per
// operation, so a test's expect calls line up one-to-one with the
// operations it performs.

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-adbhost/adbhost/wire"
)

type scriptedServer struct {
	t        *testing.T
	listener net.Listener

	mu      sync.Mutex
	scripts []func(*serverConn)
	wg      sync.WaitGroup
}

func newScriptedServer(t *testing.T) *scriptedServer {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &scriptedServer{t: t, listener: listener}
	go s.acceptLoop()
	t.Cleanup(s.close)
	return s
}

func (s *scriptedServer) endpoint() Endpoint {
	addr := s.listener.Addr().(*net.TCPAddr)
	return Endpoint{Host: "127.0.0.1", Port: addr.Port}
}

// expect queues a script for the next accepted connection.
func (s *scriptedServer) expect(script func(*serverConn)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts = append(s.scripts, script)
}

func (s *scriptedServer) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		if len(s.scripts) == 0 {
			s.mu.Unlock()
			s.t.Error("unexpected connection with no script queued")
			conn.Close()
			continue
		}
		script := s.scripts[0]
		s.scripts = s.scripts[1:]
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			script(&serverConn{t: s.t, Conn: conn, r: bufio.NewReader(conn)})
		}()
	}
}

func (s *scriptedServer) close() {
	s.listener.Close()
	s.wg.Wait()
}

type serverConn struct {
	t *testing.T
	net.Conn
	r *bufio.Reader
}

// readRequest consumes one hex-length-framed host request.
func (c *serverConn) readRequest() string {
	n, err := wire.ReadLengthFrom(c.r)
	if !assert.NoError(c.t, err) {
		return ""
	}
	buf := make([]byte, n)
	_, err = io.ReadFull(c.r, buf)
	assert.NoError(c.t, err)
	return string(buf)
}

func (c *serverConn) expectRequest(want string) {
	assert.Equal(c.t, want, c.readRequest())
}

func (c *serverConn) okay() {
	io.WriteString(c.Conn, "OKAY")
}

func (c *serverConn) fail(msg string) {
	fmt.Fprintf(c.Conn, "FAIL%04X%s", len(msg), msg)
}

// payload writes raw response bytes; shell-style responses run to
// end-of-stream, terminated when the script returns and the connection
// closes.
func (c *serverConn) payload(s string) {
	io.WriteString(c.Conn, s)
}

// framedPayload writes a hex-length-framed response body.
func (c *serverConn) framedPayload(s string) {
	fmt.Fprintf(c.Conn, "%04X%s", len(s), s)
}

func (c *serverConn) expectTransport(serial string) {
	c.expectRequest("host:transport:" + serial)
	c.okay()
}

// shellExchange scripts one transport + shell command + output exchange.
func (c *serverConn) shellExchange(serial, cmd, output string) {
	c.expectTransport(serial)
	c.expectRequest("shell:" + cmd)
	c.okay()
	c.payload(output)
}

// --- sync sub-protocol helpers ---

func (c *serverConn) expectSyncMode(serial string) {
	c.expectTransport(serial)
	c.expectRequest("sync:")
	c.okay()
}

// readSyncRequest consumes one sync request frame (STAT/LIST/RECV/SEND)
// and returns its code and path payload.
func (c *serverConn) readSyncRequest() (string, string) {
	var id [4]byte
	_, err := io.ReadFull(c.r, id[:])
	if !assert.NoError(c.t, err) {
		return "", ""
	}
	n, err := wire.ReadSyncUint32(c.r)
	if !assert.NoError(c.t, err) {
		return string(id[:]), ""
	}
	buf := make([]byte, n)
	_, err = io.ReadFull(c.r, buf)
	assert.NoError(c.t, err)
	return string(id[:]), string(buf)
}

func (c *serverConn) expectSyncRequest(wantID, wantPayload string) {
	id, payload := c.readSyncRequest()
	assert.Equal(c.t, wantID, id)
	assert.Equal(c.t, wantPayload, payload)
}

func (c *serverConn) writeSyncStat(mode, size, mtime uint32) {
	io.WriteString(c.Conn, "STAT")
	wire.WriteLengthLE(c.Conn, mode)
	wire.WriteLengthLE(c.Conn, size)
	wire.WriteLengthLE(c.Conn, mtime)
}

func (c *serverConn) writeDent(mode, size, mtime uint32, name string) {
	io.WriteString(c.Conn, "DENT")
	wire.WriteLengthLE(c.Conn, mode)
	wire.WriteLengthLE(c.Conn, size)
	wire.WriteLengthLE(c.Conn, mtime)
	wire.WriteLengthLE(c.Conn, uint32(len(name)))
	io.WriteString(c.Conn, name)
}

func (c *serverConn) writeSyncDone() {
	io.WriteString(c.Conn, "DONE")
}

func (c *serverConn) writeSyncData(b []byte) {
	io.WriteString(c.Conn, "DATA")
	wire.WriteLengthLE(c.Conn, uint32(len(b)))
	c.Conn.Write(b)
}

func (c *serverConn) writeSyncFail(msg []byte) {
	io.WriteString(c.Conn, "FAIL")
	wire.WriteLengthLE(c.Conn, uint32(len(msg)))
	c.Conn.Write(msg)
}

// readPush consumes a full SEND exchange and returns its header payload,
// the concatenated DATA bytes, and the DONE mtime. The caller writes the
// final status itself.
func (c *serverConn) readPush() (header string, data []byte, mtime uint32) {
	id, header := c.readSyncRequest()
	if !assert.Equal(c.t, "SEND", id) {
		return header, nil, 0
	}

	for {
		var code [4]byte
		if _, err := io.ReadFull(c.r, code[:]); !assert.NoError(c.t, err) {
			return header, data, 0
		}
		switch string(code[:]) {
		case "DATA":
			n, err := wire.ReadSyncUint32(c.r)
			if !assert.NoError(c.t, err) {
				return header, data, 0
			}
			chunk := make([]byte, n)
			if _, err := io.ReadFull(c.r, chunk); !assert.NoError(c.t, err) {
				return header, data, 0
			}
			data = append(data, chunk...)
		case "DONE":
			mtime, err := wire.ReadSyncUint32(c.r)
			assert.NoError(c.t, err)
			return header, data, mtime
		default:
			c.t.Errorf("unexpected sync code %q during push", code)
			return header, data, 0
		}
	}
}
