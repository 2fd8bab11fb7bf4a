package adb

import (
	"errors"
	"fmt"
)

// The closed set of error kinds this library produces, beyond plain I/O
// errors and *wire.ProtocolError (the server-reported failures). All of
// them compose with errors.Is / errors.As.
var (
	// ErrConnectTimeout is returned when the ADB server did not accept a
	// TCP connection within the connect deadline.
	ErrConnectTimeout = errors.New("timed out while opening adb connection")

	// ErrInvalidStorage is returned when a storage input string is not one
	// of auto, app, internal, or sdcard.
	ErrInvalidStorage = errors.New("invalid storage")

	// ErrMissingPackage is returned when a run-as operation is requested
	// but the device has no run-as package configured.
	ErrMissingPackage = errors.New("missing run-as package")

	// ErrMultipleDevices is returned when device selection is ambiguous:
	// more than one device is online and no serial was specified.
	ErrMultipleDevices = errors.New("multiple android devices online")
)

// UnknownDeviceError is returned when an explicitly requested serial does
// not match any online device.
type UnknownDeviceError struct {
	Serial string
}

func (e *UnknownDeviceError) Error() string {
	return fmt.Sprintf("unknown android device with serial %q", e.Serial)
}

// PackageManagerError is returned when pm install/uninstall did not report
// success. It carries the package manager's full output.
type PackageManagerError struct {
	Output string
}

func (e *PackageManagerError) Error() string {
	return fmt.Sprintf("package manager returned an error: %s", e.Output)
}
