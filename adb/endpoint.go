// Package adb is a client for the Android Debug Bridge host protocol. It
// talks to a locally-running adb server over TCP, opening a fresh transport
// per operation, and implements the sync sub-protocol for file transfer and
// directory traversal. The low-level framing lives in the wire subpackage.
package adb

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/go-adbhost/adbhost/wire"
)

const (
	// DefaultHost is the host the adb server usually listens on.
	DefaultHost = "localhost"

	// DefaultPort is the adb server's default TCP port.
	DefaultPort = 5037

	connectTimeout = 5 * time.Second
)

// Endpoint is the address of an ADB host server. The zero value addresses
// the default server at localhost:5037. Endpoints are plain values with no
// lifecycle.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) hostname() string {
	if e.Host == "" {
		return DefaultHost
	}
	return e.Host
}

func (e Endpoint) port() int {
	if e.Port == 0 {
		return DefaultPort
	}
	return e.Port
}

// Addr returns the endpoint in host:port form.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.hostname(), strconv.Itoa(e.port()))
}

// Dial opens a TCP connection to the server with a 5-second deadline and
// TCP_NODELAY enabled. A deadline expiry is reported as ErrConnectTimeout.
func (e Endpoint) Dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", e.Addr())
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, ErrConnectTimeout
		}
		return nil, err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}
	return conn, nil
}

// watchContext closes conn when ctx is canceled, unblocking any pending
// read or write. The returned stop function releases the watcher; it must
// be called before conn is reused or closed by the caller's own path.
func watchContext(ctx context.Context, conn net.Conn) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}

// executeCommand runs one request/response exchange against the server on
// a fresh connection, without selecting a device transport first.
func executeCommand(ctx context.Context, endpoint Endpoint, command string, hasOutput, hasLength bool) ([]byte, error) {
	conn, err := endpoint.Dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	stop := watchContext(ctx, conn)
	defer stop()

	if err := writeHostRequest(conn, command); err != nil {
		return nil, err
	}
	body, err := wire.ReadResponse(conn, hasOutput, hasLength)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return body, nil
}

func writeHostRequest(w io.Writer, command string) error {
	msg, err := wire.EncodeMessage(command)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, msg)
	return err
}
