package adb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-adbhost/adbhost/wire"
)

func newTestDevice(t *testing.T, server *scriptedServer) *Device {
	t.Helper()
	device := NewDevice(server.endpoint(), "abc123", nil, StorageInputAuto)
	t.Cleanup(device.Close)
	return device
}

func TestShellCommandNormalizesNewlines(t *testing.T) {
	server := newScriptedServer(t)
	server.expect(func(c *serverConn) {
		c.shellExchange("abc123", "echo hello", "hello\r\nworld\r\n")
	})

	device := newTestDevice(t, server)
	out, err := device.ShellCommand(context.Background(), "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld\n", out)
}

func TestExecOutKeepsRawBytes(t *testing.T) {
	server := newScriptedServer(t)
	server.expect(func(c *serverConn) {
		c.expectTransport("abc123")
		c.expectRequest("exec:cat /sdcard/blob")
		c.okay()
		c.payload("a\r\nb\x00c")
	})

	device := newTestDevice(t, server)
	out, err := device.ExecOut(context.Background(), "cat /sdcard/blob")
	require.NoError(t, err)
	assert.Equal(t, []byte("a\r\nb\x00c"), out)
}

func TestShellCommandAsBypassesRunAsForSu(t *testing.T) {
	server := newScriptedServer(t)
	server.expect(func(c *serverConn) {
		c.shellExchange("abc123", "su -c id", "uid=0(root)\n")
	})

	device := newTestDevice(t, server)
	device.RunAsPackage = "com.example.app"

	out, err := device.ShellCommandAs(context.Background(), "su -c id", true)
	require.NoError(t, err)
	assert.Equal(t, "uid=0(root)\n", out)
}

func TestShellCommandAsWrapsInRunAs(t *testing.T) {
	server := newScriptedServer(t)
	server.expect(func(c *serverConn) {
		c.shellExchange("abc123", "run-as com.example.app ls /data/data/com.example.app/files", "cache\n")
	})

	device := newTestDevice(t, server)
	device.RunAsPackage = "com.example.app"

	out, err := device.ShellCommandAs(context.Background(), "ls /data/data/com.example.app/files", true)
	require.NoError(t, err)
	assert.Equal(t, "cache\n", out)
}

func TestShellCommandAsRequiresPackage(t *testing.T) {
	device := NewDevice(Endpoint{}, "abc123", nil, StorageInputAuto)
	defer device.Close()

	_, err := device.ShellCommandAs(context.Background(), "ls /", true)
	assert.ErrorIs(t, err, ErrMissingPackage)
}

func TestEnableRunAsForPath(t *testing.T) {
	device := NewDevice(Endpoint{}, "abc123", nil, StorageInputAuto)
	defer device.Close()

	assert.False(t, device.EnableRunAsForPath("/data/data/com.example.app/files"))

	device.RunAsPackage = "com.example.app"
	assert.True(t, device.EnableRunAsForPath("/data/data/com.example.app/files"))
	assert.True(t, device.EnableRunAsForPath("/data/data/com.example.app"))
	assert.False(t, device.EnableRunAsForPath("/data/data/com.example.appendix/files"))
	assert.False(t, device.EnableRunAsForPath("/sdcard/Download"))
}

func TestPathExists(t *testing.T) {
	server := newScriptedServer(t)
	server.expect(func(c *serverConn) {
		c.shellExchange("abc123", "ls /sdcard", "Download\nDCIM\n")
	})
	server.expect(func(c *serverConn) {
		c.shellExchange("abc123", "ls /nope", "ls: /nope: No such file or directory\n")
	})

	device := newTestDevice(t, server)

	exists, err := device.PathExists(context.Background(), "/sdcard", false)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = device.PathExists(context.Background(), "/nope", false)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestForwardPortReturnsAllocatedPort(t *testing.T) {
	server := newScriptedServer(t)
	server.expect(func(c *serverConn) {
		c.expectRequest("host-serial:abc123:forward:tcp:0;tcp:9000")
		c.okay()
		c.payload("12345")
	})

	device := newTestDevice(t, server)
	port, err := device.ForwardPort(context.Background(), 0, 9000)
	require.NoError(t, err)
	assert.Equal(t, 12345, port)
}

func TestForwardPortReturnsRequestedPort(t *testing.T) {
	server := newScriptedServer(t)
	server.expect(func(c *serverConn) {
		c.expectRequest("host-serial:abc123:forward:tcp:8000;tcp:9000")
		c.okay()
	})

	device := newTestDevice(t, server)
	port, err := device.ForwardPort(context.Background(), 8000, 9000)
	require.NoError(t, err)
	assert.Equal(t, 8000, port)
}

func TestKillForwardPort(t *testing.T) {
	server := newScriptedServer(t)
	server.expect(func(c *serverConn) {
		c.expectTransport("abc123")
		c.expectRequest("host-serial:abc123:killforward:tcp:8000")
		c.okay()
	})

	device := newTestDevice(t, server)
	require.NoError(t, device.KillForwardPort(context.Background(), 8000))
}

func TestKillForwardPortTwiceSurfacesListenerError(t *testing.T) {
	server := newScriptedServer(t)
	server.expect(func(c *serverConn) {
		c.expectTransport("abc123")
		c.expectRequest("host-serial:abc123:killforward:tcp:8000")
		c.okay()
	})
	server.expect(func(c *serverConn) {
		c.expectTransport("abc123")
		c.expectRequest("host-serial:abc123:killforward:tcp:8000")
		c.fail("listener 'tcp:8000' not found")
	})

	device := newTestDevice(t, server)
	ctx := context.Background()
	require.NoError(t, device.KillForwardPort(ctx, 8000))

	err := device.KillForwardPort(ctx, 8000)
	var protoErr *wire.ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Contains(t, protoErr.Message, "listener 'tcp:8000'")
}

func TestKillForwardAllPortsWithNoForwards(t *testing.T) {
	server := newScriptedServer(t)
	server.expect(func(c *serverConn) {
		c.expectTransport("abc123")
		c.expectRequest("host-serial:abc123:killforward-all")
		c.okay()
	})

	device := newTestDevice(t, server)
	require.NoError(t, device.KillForwardAllPorts(context.Background()))
}

func TestReversePort(t *testing.T) {
	server := newScriptedServer(t)
	server.expect(func(c *serverConn) {
		c.expectTransport("abc123")
		c.expectRequest("reverse:forward:tcp:9000;tcp:8000")
		c.okay()
	})

	device := newTestDevice(t, server)
	port, err := device.ReversePort(context.Background(), 9000, 8000)
	require.NoError(t, err)
	assert.Equal(t, 9000, port)
}

func TestKillReversePortReadsFramedReply(t *testing.T) {
	server := newScriptedServer(t)
	server.expect(func(c *serverConn) {
		c.expectTransport("abc123")
		c.expectRequest("reverse:killforward:tcp:9000")
		c.okay()
		c.framedPayload("")
	})

	device := newTestDevice(t, server)
	require.NoError(t, device.KillReversePort(context.Background(), 9000))
}

func TestKillReverseAllPorts(t *testing.T) {
	server := newScriptedServer(t)
	server.expect(func(c *serverConn) {
		c.expectTransport("abc123")
		c.expectRequest("reverse:killforward-all")
		c.okay()
	})

	device := newTestDevice(t, server)
	require.NoError(t, device.KillReverseAllPorts(context.Background()))
}

func TestTcpipReadsNoBody(t *testing.T) {
	server := newScriptedServer(t)
	server.expect(func(c *serverConn) {
		c.expectTransport("abc123")
		c.expectRequest("tcpip:5555")
		c.okay()
	})

	device := newTestDevice(t, server)
	require.NoError(t, device.Tcpip(context.Background(), 5555))
}

func TestUsb(t *testing.T) {
	server := newScriptedServer(t)
	server.expect(func(c *serverConn) {
		c.expectTransport("abc123")
		c.expectRequest("usb:")
		c.okay()
	})

	device := newTestDevice(t, server)
	require.NoError(t, device.Usb(context.Background()))
}
