package adb

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/go-adbhost/adbhost/internal/clock"
	"github.com/go-adbhost/adbhost/internal/telemetry"
	"github.com/go-adbhost/adbhost/wire"
)

// Device is a session bound to one device serial. It holds no connection:
// every operation dials the server, selects the device transport, runs,
// and closes. Copies share only immutable configuration and are safe to
// use independently, but pushes through the same session must not run
// concurrently — they share the staging path.
type Device struct {
	Endpoint Endpoint

	// Serial uniquely identifies the device on this server.
	Serial string

	// Attrs are the devices-l attributes captured at selection time.
	Attrs map[string]string

	// RunAsPackage, when set, routes shell commands and pushes targeting
	// /data/data/<RunAsPackage>/ through run-as.
	RunAsPackage string

	Storage Storage

	// StagingPath is the intermediate destination for run-as pushes,
	// fixed at construction and never reused across sessions.
	StagingPath string

	logger *logrus.Logger
	oplog  *telemetry.Log
	clock  clock.Clock
}

// NewDevice constructs a session for the device with the given serial.
func NewDevice(endpoint Endpoint, serial string, attrs map[string]string, storage StorageInput) *Device {
	return NewDeviceWithLogger(endpoint, serial, attrs, storage, logrus.StandardLogger())
}

func NewDeviceWithLogger(endpoint Endpoint, serial string, attrs map[string]string, storage StorageInput, logger *logrus.Logger) *Device {
	return &Device{
		Endpoint:    endpoint,
		Serial:      serial,
		Attrs:       attrs,
		Storage:     storage.Resolve(),
		StagingPath: "/data/local/tmp/" + uuid.NewString(),
		logger:      logger,
		oplog:       telemetry.New(logger, "Device", serial),
		clock:       clock.System,
	}
}

// Close releases the session's event log.
func (d *Device) Close() {
	d.oplog.Finish()
}

// requestTransport binds conn to this device's transport. Subsequent
// requests on conn reach the device; the response reader absorbs the
// stacked-OKAY artefact this produces on some server paths.
func (d *Device) requestTransport(conn net.Conn) error {
	if err := writeHostRequest(conn, "host:transport:"+d.Serial); err != nil {
		return err
	}
	_, err := wire.ReadResponse(conn, false, false)
	return err
}

// executeHostCommand runs command on a fresh device-bound transport.
func (d *Device) executeHostCommand(ctx context.Context, command string, hasOutput, hasLength bool) ([]byte, error) {
	conn, err := d.Endpoint.Dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	stop := watchContext(ctx, conn)
	defer stop()

	if err := d.requestTransport(conn); err != nil {
		return nil, err
	}
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

func (d *Device) executeHostCommandString(ctx context.Context, command string, hasOutput, hasLength bool) (string, error) {
	body, err := d.executeHostCommand(ctx, command, hasOutput, hasLength)
	if err != nil {
		return "", err
	}
	// Unify newlines by removing possible carriage returns.
	return strings.ReplaceAll(string(body), "\r\n", "\n"), nil
}

// ShellCommand runs cmd through the device shell and captures its output
// to end-of-stream, with \r\n normalized to \n.
func (d *Device) ShellCommand(ctx context.Context, cmd string) (out string, err error) {
	entry := d.oplog.Start("ShellCommand", logrus.Fields{"cmd": cmd})
	defer func() { entry.SetError(err).Finish() }()
	return d.executeHostCommandString(ctx, "shell:"+cmd, true, false)
}

// ShellCommandAs runs cmd, optionally wrapped in run-as for the session's
// package. Commands that already invoke su bypass run-as entirely.
func (d *Device) ShellCommandAs(ctx context.Context, cmd string, enableRunAs bool) (string, error) {
	if strings.HasPrefix(cmd, "su") {
		return d.executeHostCommandString(ctx, "shell:"+cmd, true, false)
	}
	if enableRunAs {
		if d.RunAsPackage == "" {
			return "", ErrMissingPackage
		}
		return d.executeHostCommandString(ctx, "shell:"+wrapRunAs(d.RunAsPackage, cmd), true, false)
	}
	return d.executeHostCommandString(ctx, "shell:"+cmd, true, false)
}

// ExecOut runs cmd via exec: and captures the raw bytes, with no newline
// normalization.
func (d *Device) ExecOut(ctx context.Context, cmd string) (out []byte, err error) {
	entry := d.oplog.Start("ExecOut", logrus.Fields{"cmd": cmd})
	defer func() { entry.SetError(err).Finish() }()
	return d.executeHostCommand(ctx, "exec:"+cmd, true, false)
}

// EnableRunAsForPath reports whether writes to path must go through
// run-as: a run-as package is configured and path is under its private
// data directory.
func (d *Device) EnableRunAsForPath(path string) bool {
	if d.RunAsPackage == "" {
		return false
	}
	private := "/data/data/" + d.RunAsPackage
	return path == private || strings.HasPrefix(path, private+"/")
}

// PathExists probes path with ls under the requested run-as mode.
func (d *Device) PathExists(ctx context.Context, path string, enableRunAs bool) (bool, error) {
	out, err := d.ShellCommandAs(ctx, "ls "+path, enableRunAs)
	if err != nil {
		return false, err
	}
	return !strings.Contains(out, "No such file or directory"), nil
}

// CreateDir creates path and any missing ancestors.
func (d *Device) CreateDir(ctx context.Context, path string) error {
	d.logger.WithField("path", path).Debug("creating remote directory")
	_, err := d.ShellCommandAs(ctx, "mkdir -p "+path, d.EnableRunAsForPath(path))
	return err
}

// Chmod changes path's permission mask, recursively when requested.
func (d *Device) Chmod(ctx context.Context, path, mask string, recursive bool) error {
	cmd := "chmod "
	if recursive {
		cmd += "-R "
	}
	cmd += mask + " " + path
	_, err := d.ShellCommandAs(ctx, cmd, d.EnableRunAsForPath(path))
	return err
}

// Remove deletes path recursively.
func (d *Device) Remove(ctx context.Context, path string) error {
	d.logger.WithField("path", path).Debug("deleting remote path")
	_, err := d.ShellCommandAs(ctx, "rm -rf "+path, d.EnableRunAsForPath(path))
	return err
}

// Tcpip restarts adbd listening on TCP port. The server sends no response
// body for this command, so none is read.
func (d *Device) Tcpip(ctx context.Context, port int) error {
	d.logger.WithField("port", port).Debug("restarting adbd in TCP mode")
	_, err := d.executeHostCommand(ctx, fmt.Sprintf("tcpip:%d", port), false, true)
	return err
}

// Usb restarts adbd in USB mode. As with Tcpip, no response body is read.
func (d *Device) Usb(ctx context.Context) error {
	d.logger.Debug("restarting adbd in USB mode")
	_, err := d.executeHostCommand(ctx, "usb:", false, true)
	return err
}
