package adb

import "strings"

// DeviceState is the connection state the server reports for a device.
type DeviceState int

const (
	StateUnknown DeviceState = iota
	StateOffline
	StateBootloader
	StateDevice
	StateHost
	StateRecovery
	StateNoPermissions
	StateSideload
	StateUnauthorized
	StateAuthorizing
)

var stateNames = map[string]DeviceState{
	"offline":        StateOffline,
	"bootloader":     StateBootloader,
	"device":         StateDevice,
	"host":           StateHost,
	"recovery":       StateRecovery,
	"no permissions": StateNoPermissions,
	"sideload":       StateSideload,
	"unauthorized":   StateUnauthorized,
	"authorizing":    StateAuthorizing,
}

// ParseDeviceState maps a server state string to a DeviceState. Strings
// outside the known set map to StateUnknown.
func ParseDeviceState(s string) DeviceState {
	if state, ok := stateNames[s]; ok {
		return state
	}
	return StateUnknown
}

func (s DeviceState) String() string {
	for name, state := range stateNames {
		if state == s {
			return name
		}
	}
	return "unknown"
}

// DeviceBrief identifies a device and its connection state, as reported by
// track-devices frames.
type DeviceBrief struct {
	Serial string
	State  DeviceState
}

// DeviceInfo is a DeviceBrief plus the key:value attributes the server
// reports in devices-l listings (product, model, transport_id, ...).
type DeviceInfo struct {
	Serial string
	State  DeviceState
	Attrs  map[string]string
}

// parseDeviceInfo parses one devices-l line of the form
// "serial<TAB>state key1:value1 key2:value2 ...". Malformed lines are
// skipped by the caller.
func parseDeviceInfo(line string) (DeviceInfo, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return DeviceInfo{}, false
	}

	attrs := make(map[string]string)
	for _, pair := range fields[2:] {
		kv := strings.Split(pair, ":")
		if len(kv) == 2 {
			attrs[kv[0]] = kv[1]
		}
	}

	return DeviceInfo{
		Serial: fields[0],
		State:  ParseDeviceState(fields[1]),
		Attrs:  attrs,
	}, true
}

// parseDeviceBrief parses one track-devices frame of the form
// "serial<TAB>state".
func parseDeviceBrief(line string) (DeviceBrief, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return DeviceBrief{}, false
	}
	return DeviceBrief{
		Serial: fields[0],
		State:  ParseDeviceState(fields[1]),
	}, true
}
