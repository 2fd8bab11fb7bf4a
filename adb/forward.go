package adb

import (
	"context"
	"fmt"
	"strconv"
)

// ForwardPort forwards host port local to device port remote. A local of 0
// asks the server to allocate a port; the allocated port is returned.
func (d *Device) ForwardPort(ctx context.Context, local, remote int) (int, error) {
	command := fmt.Sprintf("host-serial:%s:forward:tcp:%d;tcp:%d", d.Serial, local, remote)
	body, err := executeCommand(ctx, d.Endpoint, command, true, false)
	if err != nil {
		return 0, err
	}
	if local == 0 {
		return strconv.Atoi(string(body))
	}
	return local, nil
}

// KillForwardPort removes the forward on host port local.
func (d *Device) KillForwardPort(ctx context.Context, local int) error {
	command := fmt.Sprintf("host-serial:%s:killforward:tcp:%d", d.Serial, local)
	_, err := d.executeHostCommand(ctx, command, true, false)
	return err
}

// KillForwardAllPorts removes every forward for this device. Succeeds when
// there are none.
func (d *Device) KillForwardAllPorts(ctx context.Context) error {
	command := fmt.Sprintf("host-serial:%s:killforward-all", d.Serial)
	_, err := d.executeHostCommand(ctx, command, false, false)
	return err
}

// ReversePort forwards device port remote back to host port local. A
// remote of 0 asks the device to allocate a port; the allocated port is
// returned.
func (d *Device) ReversePort(ctx context.Context, remote, local int) (int, error) {
	command := fmt.Sprintf("reverse:forward:tcp:%d;tcp:%d", remote, local)
	body, err := d.executeHostCommandString(ctx, command, true, false)
	if err != nil {
		return 0, err
	}
	if remote == 0 {
		return strconv.Atoi(body)
	}
	return remote, nil
}

// KillReversePort removes the reverse forward on device port remote. The
// server frames this reply with a length prefix, unlike KillForwardPort.
func (d *Device) KillReversePort(ctx context.Context, remote int) error {
	command := fmt.Sprintf("reverse:killforward:tcp:%d", remote)
	_, err := d.executeHostCommand(ctx, command, true, true)
	return err
}

// KillReverseAllPorts removes every reverse forward for this device.
func (d *Device) KillReverseAllPorts(ctx context.Context) error {
	_, err := d.executeHostCommand(ctx, "reverse:killforward-all", false, false)
	return err
}
