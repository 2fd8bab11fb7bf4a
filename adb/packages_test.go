package adb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAppInstalled(t *testing.T) {
	server := newScriptedServer(t)
	server.expect(func(c *serverConn) {
		c.shellExchange("abc123", "pm path com.example.app", "package:/data/app/com.example.app/base.apk\n")
	})
	server.expect(func(c *serverConn) {
		c.shellExchange("abc123", "pm path com.example.missing", "")
	})

	device := newTestDevice(t, server)
	ctx := context.Background()

	installed, err := device.IsAppInstalled(ctx, "com.example.app")
	require.NoError(t, err)
	assert.True(t, installed)

	installed, err = device.IsAppInstalled(ctx, "com.example.missing")
	require.NoError(t, err)
	assert.False(t, installed)
}

func TestClearAppData(t *testing.T) {
	server := newScriptedServer(t)
	server.expect(func(c *serverConn) {
		c.shellExchange("abc123", "pm clear com.example.app", "Success\n")
	})

	device := newTestDevice(t, server)
	cleared, err := device.ClearAppData(context.Background(), "com.example.app")
	require.NoError(t, err)
	assert.True(t, cleared)
}

func TestForceStop(t *testing.T) {
	server := newScriptedServer(t)
	server.expect(func(c *serverConn) {
		c.shellExchange("abc123", "am force-stop com.example.app", "")
	})

	device := newTestDevice(t, server)
	require.NoError(t, device.ForceStop(context.Background(), "com.example.app"))
}

func TestListPackagesSortsAndFilters(t *testing.T) {
	server := newScriptedServer(t)
	server.expect(func(c *serverConn) {
		c.shellExchange("abc123", "pm list packages -3", "package:com.zeta\npackage:com.alpha\nnoise line\n")
	})

	device := newTestDevice(t, server)
	packages, err := device.ListPackages(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"com.alpha", "com.zeta"}, packages)
}

func TestUninstallPackageFailure(t *testing.T) {
	server := newScriptedServer(t)
	server.expect(func(c *serverConn) {
		c.shellExchange("abc123", "pm uninstall com.example.app", "Failure [DELETE_FAILED_INTERNAL_ERROR]\n")
	})

	device := newTestDevice(t, server)
	err := device.UninstallPackage(context.Background(), "com.example.app")

	var pmErr *PackageManagerError
	require.ErrorAs(t, err, &pmErr)
	assert.Contains(t, pmErr.Output, "DELETE_FAILED_INTERNAL_ERROR")
}

func TestInstallPackage(t *testing.T) {
	apkPath := filepath.Join(t.TempDir(), "demo.apk")
	require.NoError(t, os.WriteFile(apkPath, []byte("not really dex"), 0o644))

	server := newScriptedServer(t)
	// Ancestor probe for the push destination.
	server.expect(func(c *serverConn) {
		c.shellExchange("abc123", "ls /data/local/tmp", "demo.apk\n")
	})
	// The push itself.
	server.expect(func(c *serverConn) {
		c.expectSyncMode("abc123")
		header, data, _ := c.readPush()
		assert.Equal(t, "/data/local/tmp/demo.apk,420", header)
		assert.Equal(t, []byte("not really dex"), data)
		c.okay()
	})
	server.expect(func(c *serverConn) {
		c.shellExchange("abc123", "pm install -r /data/local/tmp/demo.apk", "Success\n")
	})
	server.expect(func(c *serverConn) {
		c.shellExchange("abc123", "rm /data/local/tmp/demo.apk", "")
	})

	device := newTestDevice(t, server)
	require.NoError(t, device.InstallPackage(context.Background(), apkPath, true, false))
}

func TestInstallPackageWithProgressReachesCompletion(t *testing.T) {
	apkPath := filepath.Join(t.TempDir(), "demo.apk")
	require.NoError(t, os.WriteFile(apkPath, []byte("payload"), 0o644))

	server := newScriptedServer(t)
	server.expect(func(c *serverConn) {
		c.shellExchange("abc123", "ls /data/local/tmp", "files\n")
	})
	server.expect(func(c *serverConn) {
		c.expectSyncMode("abc123")
		_, data, _ := c.readPush()
		assert.Equal(t, []byte("payload"), data)
		c.okay()
	})
	server.expect(func(c *serverConn) {
		c.shellExchange("abc123", "pm install /data/local/tmp/demo.apk", "Success\n")
	})
	server.expect(func(c *serverConn) {
		c.shellExchange("abc123", "rm /data/local/tmp/demo.apk", "")
	})

	device := newTestDevice(t, server)
	progress := make(chan float32, 64)
	require.NoError(t, device.InstallPackageWithProgress(context.Background(), apkPath, false, false, progress))
	close(progress)

	var fractions []float32
	for f := range progress {
		fractions = append(fractions, f)
	}
	require.NotEmpty(t, fractions)
	assert.EqualValues(t, 1.0, fractions[len(fractions)-1])
}
