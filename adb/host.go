package adb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/go-adbhost/adbhost/internal/telemetry"
	"github.com/go-adbhost/adbhost/wire"
)

// HostClient talks to the ADB host server itself: enumeration, version
// queries, server lifecycle, and device-connection tracking. Every
// operation opens its own TCP connection.
type HostClient struct {
	Endpoint Endpoint

	logger *logrus.Logger
	oplog  *telemetry.Log
}

// NewHostClient returns a client for the server at endpoint, logging
// through the standard logrus logger.
func NewHostClient(endpoint Endpoint) *HostClient {
	return NewHostClientWithLogger(endpoint, logrus.StandardLogger())
}

func NewHostClientWithLogger(endpoint Endpoint, logger *logrus.Logger) *HostClient {
	return &HostClient{
		Endpoint: endpoint,
		logger:   logger,
		oplog:    telemetry.New(logger, "HostClient", endpoint.Addr()),
	}
}

// Close releases the client's event log. The client holds no connections.
func (c *HostClient) Close() {
	c.oplog.Finish()
}

// Connect opens a raw connection to the server, for callers that want to
// speak the wire protocol themselves.
func (c *HostClient) Connect(ctx context.Context) (net.Conn, error) {
	return c.Endpoint.Dial(ctx)
}

func (c *HostClient) executeHostCommand(ctx context.Context, command string, hasOutput, hasLength bool) ([]byte, error) {
	return executeCommand(ctx, c.Endpoint, "host:"+command, hasOutput, hasLength)
}

// StartServer spawns the external adb binary to start the server for this
// endpoint. adbExe defaults to "adb" when empty.
func (c *HostClient) StartServer(ctx context.Context, adbExe string) error {
	return c.serverCommand(ctx, adbExe, "start-server", "Failed to start adb server")
}

// KillServer spawns the external adb binary to stop the server.
func (c *HostClient) KillServer(ctx context.Context, adbExe string) error {
	return c.serverCommand(ctx, adbExe, "kill-server", "Failed to kill adb server")
}

func (c *HostClient) serverCommand(ctx context.Context, adbExe, subcommand, failure string) (err error) {
	entry := c.oplog.Start(subcommand, nil)
	defer func() { entry.SetError(err).Finish() }()

	if adbExe == "" {
		adbExe = "adb"
	}
	cmd := exec.CommandContext(ctx, adbExe,
		"-H", c.Endpoint.hostname(),
		"-P", strconv.Itoa(c.Endpoint.port()),
		subcommand)
	if runErr := cmd.Run(); runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return runErr
		}
		return &wire.ProtocolError{Message: failure}
	}
	return nil
}

// HostVersion queries the server's internal version number.
func (c *HostClient) HostVersion(ctx context.Context) (version uint64, err error) {
	entry := c.oplog.Start("HostVersion", nil)
	defer func() { entry.SetError(err).SetResult(version).Finish() }()

	body, err := c.executeHostCommand(ctx, "version", true, true)
	if err != nil {
		return 0, err
	}
	version, parseErr := strconv.ParseUint(string(body), 16, 64)
	if parseErr != nil {
		return 0, &wire.ProtocolError{Message: "Failed to parse host version"}
	}
	return version, nil
}

// CheckHostRunning succeeds iff a server responds with version >= 20.
func (c *HostClient) CheckHostRunning(ctx context.Context) error {
	version, err := c.HostVersion(ctx)
	if err != nil {
		return err
	}
	if version < 20 {
		return &wire.ProtocolError{Message: "Host version is too old"}
	}
	return nil
}

// Features returns the feature set the server advertises.
func (c *HostClient) Features(ctx context.Context) ([]string, error) {
	body, err := c.executeHostCommand(ctx, "features", true, true)
	if err != nil {
		return nil, err
	}
	return strings.Split(string(body), ","), nil
}

// Devices enumerates the devices the server knows about, with their
// attributes. Malformed listing lines are skipped.
func (c *HostClient) Devices(ctx context.Context) (infos []DeviceInfo, err error) {
	entry := c.oplog.Start("Devices", nil)
	defer func() { entry.SetError(err).Finish() }()

	body, err := c.executeHostCommand(ctx, "devices-l", true, true)
	if err != nil {
		return nil, err
	}
	for _, line := range strings.Split(string(body), "\n") {
		if info, ok := parseDeviceInfo(line); ok {
			infos = append(infos, info)
		}
	}
	return infos, nil
}

// DeviceEvent is one element of a track-devices stream: either a device
// brief or the error that terminated the stream.
type DeviceEvent struct {
	Device DeviceBrief
	Err    error
}

// TrackDevices subscribes to the server's device-connection events. The
// returned channel yields a DeviceBrief whenever a device changes state,
// and closes after an error event or when ctx is canceled. Zero-length
// keep-alive frames are skipped silently.
func (c *HostClient) TrackDevices(ctx context.Context) (<-chan DeviceEvent, error) {
	conn, err := c.Endpoint.Dial(ctx)
	if err != nil {
		return nil, err
	}
	if err := writeHostRequest(conn, "host:track-devices"); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := wire.ReadResponse(conn, false, false); err != nil {
		conn.Close()
		return nil, err
	}

	events := make(chan DeviceEvent)
	go func() {
		defer close(events)
		defer conn.Close()
		stop := watchContext(ctx, conn)
		defer stop()

		for {
			n, err := wire.ReadLengthFrom(conn)
			if err != nil {
				c.emitTrackError(ctx, events, err)
				return
			}
			if n == 0 {
				continue
			}
			body := make([]byte, n)
			if _, err := io.ReadFull(conn, body); err != nil {
				c.emitTrackError(ctx, events, err)
				return
			}
			brief, ok := parseDeviceBrief(string(body))
			if !ok {
				c.emitTrackError(ctx, events, &wire.ProtocolError{Message: "Failed to parse device state"})
				return
			}
			select {
			case events <- DeviceEvent{Device: brief}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

func (c *HostClient) emitTrackError(ctx context.Context, events chan<- DeviceEvent, err error) {
	if ctx.Err() != nil {
		return
	}
	select {
	case events <- DeviceEvent{Err: err}:
	case <-ctx.Done():
	}
}

// DeviceOrDefault selects an online device and constructs a session on it.
// An explicit serial (argument, or the ANDROID_SERIAL environment variable
// when the argument is empty) must match an online device. With no serial,
// exactly one device must be online.
func (c *HostClient) DeviceOrDefault(ctx context.Context, serial string, storage StorageInput) (*Device, error) {
	infos, err := c.Devices(ctx)
	if err != nil {
		return nil, err
	}
	var online []DeviceInfo
	for _, info := range infos {
		if info.State == StateDevice {
			online = append(online, info)
		}
	}

	if serial == "" {
		serial = os.Getenv("ANDROID_SERIAL")
	}
	if serial != "" {
		for _, info := range online {
			if info.Serial == serial {
				return c.newDevice(info, storage), nil
			}
		}
		return nil, &UnknownDeviceError{Serial: serial}
	}

	switch len(online) {
	case 0:
		return nil, &wire.ProtocolError{Message: "No Android devices are online"}
	case 1:
		return c.newDevice(online[0], storage), nil
	default:
		return nil, fmt.Errorf("selecting device: %w", ErrMultipleDevices)
	}
}

func (c *HostClient) newDevice(info DeviceInfo, storage StorageInput) *Device {
	return NewDeviceWithLogger(c.Endpoint, info.Serial, info.Attrs, storage, c.logger)
}
