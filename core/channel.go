/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package core

import "fmt"

// AccessUnknown marks a device name the classifier doesn't recognize; the
// planner alone decides whether that's a configured sysimage device, an
// inter-node channel, or a hard error.
const AccessUnknown Access = -1

// Channel is a typed I/O endpoint bound to a device name.
type Channel struct {
	Device      string
	Access      Access
	Path        *Location
	ContentType string
	Meta        map[string]string
	Mode        string
	Removable   string // "yes" or "no", default "no"
}

// RawChannel is the wire shape of one file_list entry in a job description.
type RawChannel struct {
	Device      string
	Path        string
	Mode        string
	Meta        map[string]string
	ContentType string
}

// Classify turns a RawChannel into a Channel: device validation, access
// lookup, path parsing, and content-type defaulting. nodeName is used only
// for error messages.
func Classify(raw RawChannel, nodeName string, defaultContentType string) (*Channel, error) {
	if HasControlChars(raw.Device) {
		return nil, fmt.Errorf("bad device name %q in node %s", raw.Device, nodeName)
	}
	if raw.Device == "" {
		return nil, fmt.Errorf("must specify device for file in node %s", nodeName)
	}
	access, known := DeviceMap[raw.Device]
	if !known {
		access = AccessUnknown
	}
	path, err := Parse(raw.Path)
	if err != nil {
		return nil, err
	}
	contentType := raw.ContentType
	if contentType == "" {
		if path != nil {
			contentType = defaultContentType
		} else {
			contentType = "text/html"
		}
	}
	// The storage-object restriction applies to known readable devices
	// only: an unknown device may legally carry a zvm:// path (inter-node
	// channel) and is resolved by the planner, not here.
	if known && access.Has(AccessReadable) && path != nil {
		if !IsSwiftPath(path) {
			return nil, fmt.Errorf("readable device must be a storage object in node %s", nodeName)
		}
	}
	meta := raw.Meta
	if meta == nil {
		meta = map[string]string{}
	}
	return &Channel{
		Device:      raw.Device,
		Access:      access,
		Path:        path,
		ContentType: contentType,
		Meta:        meta,
		Mode:        raw.Mode,
		Removable:   "no",
	}, nil
}
