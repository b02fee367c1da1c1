// Package core holds the Location/Channel/Node/Worker data model shared by
// the planner, manifest builder, and orchestrator.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package core

// Access is a bitset over the channel access modes a device can carry.
type Access int

const (
	AccessReadable Access = 1 << iota
	AccessAppend          // a.k.a. CDR: append-only, read+write
	AccessWritable
	AccessRandom
	AccessNetwork
)

func (a Access) Has(bit Access) bool { return a&bit != 0 }

// DeviceMap is the set of logical device names known without a sysimage
// registration, and the access bits each one carries by default.
var DeviceMap = map[string]Access{
	"stdin":  AccessReadable,
	"stdout": AccessWritable,
	"stderr": AccessWritable,
	"input":  AccessRandom | AccessReadable,
	"output": AccessRandom | AccessWritable,
	"debug":  AccessWritable,
	"image":  AccessAppend,
}

// channelType is the ZRT channel type used in the textual manifest: 0 for
// sequential stdio-like devices, 1 for a memory-mapped image, 3 for a
// random-access one.
var channelType = map[string]int{
	"stdin":    0,
	"stdout":   0,
	"stderr":   0,
	"input":    3,
	"output":   3,
	"debug":    0,
	"image":    1,
	"sysimage": 3,
}

// ChannelType returns the ZRT wire type for device, falling back to the
// sysimage type when device isn't one of the standard ones.
func ChannelType(device string, isSysimage bool) int {
	if t, ok := channelType[device]; ok {
		return t
	}
	if isSysimage {
		return channelType["sysimage"]
	}
	return 0
}

// StdDevices are the three standard streams; any of them left unbound by
// the job description defaults to /dev/null in the manifest.
var StdDevices = [...]string{"stdin", "stdout", "stderr"}
