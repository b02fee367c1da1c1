// Package manifest renders the per-worker ZeroVM textual manifest and the
// companion nvram blob (fstab/args/env/mapping).
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package manifest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/NVIDIA/zvmd/cmn/config"
	"github.com/NVIDIA/zvmd/core"
)

// Opts carries everything Build needs beyond the worker itself.
type Opts struct {
	Version         string
	Timeout         int
	Memory          int64
	UseSelf         bool
	Limits          config.Limits
	SysimageDevices map[string]string

	// ExeMember is the local path of the worker's executable: the tar
	// member name ("boot" by convention) of a staged executable, or the
	// member's path inside a system image; empty means no local executable
	// is staged for this worker (Program=/dev/null, no /dev/self channel).
	ExeMember string

	// LocalObject is the one channel, if any, whose bytes are this
	// request's own submitted/returned payload - the channel the [env]
	// CONTENT_LENGTH/CONTENT_TYPE/DOCUMENT_ROOT block is derived from.
	LocalObject *core.Channel
}

// envItemFmt is the ZRT nvram [env] item layout; commas inside a value
// collide with the "name=, value=" field delimiter, hence quoteForEnv.
const envItemFmt = "name=%s, value=%s\n"

// quoteForEnv escapes literal commas, the [env] stanza's field delimiter
// (see ZRT docs).
func quoteForEnv(v string) string {
	return strings.ReplaceAll(v, ",", `\x2c`)
}

func isSysimage(device string, sysimageDevices map[string]string) bool {
	_, ok := sysimageDevices[device]
	return ok
}

// Build renders the textual manifest and the nvram blob for one worker.
func Build(w *core.Worker, opts Opts) (manifestText string, nvram []byte) {
	var b strings.Builder
	program := opts.ExeMember
	if program == "" {
		program = "/dev/null"
	}
	fmt.Fprintf(&b, "Version=%s\nProgram=%s\nTimeout=%d\nMemory=%d,0\n", opts.Version, program, opts.Timeout, opts.Memory)

	modeMapping := map[string]string{}
	var fstab strings.Builder
	fstabStarted := false
	addToFstab := func(device, access, removable string) {
		if !fstabStarted {
			fstab.WriteString("[fstab]\n")
			fstabStarted = true
		}
		fmt.Fprintf(&fstab, "channel=/dev/%s, mountpoint=/, access=%s, removable=%s\n", device, access, removable)
	}

	declared := map[string]bool{}
	for _, ch := range w.Channels {
		_, knownDevice := core.DeviceMap[ch.Device]
		sysimg := isSysimage(ch.Device, opts.SysimageDevices)
		if !knownDevice && !sysimg {
			continue
		}
		typ := core.ChannelType(ch.Device, sysimg)
		if sysimg {
			addToFstab(ch.Device, "ro", "no")
		}
		lpath := ch.Device
		switch {
		case ch.Access.Has(core.AccessReadable):
			fmt.Fprintf(&b, "Channel=%s,/dev/%s,%d,0,%d,%d,0,0\n",
				lpath, ch.Device, typ, opts.Limits.Reads, opts.Limits.RBytes)
		case ch.Access.Has(core.AccessAppend):
			fmt.Fprintf(&b, "Channel=%s,/dev/%s,%d,0,%d,%d,%d,%d\n",
				lpath, ch.Device, typ, opts.Limits.Reads, opts.Limits.RBytes, opts.Limits.Writes, opts.Limits.WBytes)
			if ch.Device == "image" { // exact match, not a name-prefix family
				addToFstab(ch.Device, "ro", ch.Removable)
			}
		case ch.Access.Has(core.AccessWritable):
			tag := "0"
			if ch.Path == nil || ch == opts.LocalObject {
				tag = "1"
			}
			fmt.Fprintf(&b, "Channel=%s,/dev/%s,%d,%s,0,0,%d,%d\n",
				lpath, ch.Device, typ, tag, opts.Limits.Writes, opts.Limits.WBytes)
		case ch.Access.Has(core.AccessNetwork):
			fmt.Fprintf(&b, "Channel=%s,/dev/%s,%d,0,0,0,%d,%d\n",
				lpath, ch.Device, typ, opts.Limits.Writes, opts.Limits.WBytes)
		default:
			continue
		}
		if ch.Mode != "" {
			modeMapping[ch.Device] = ch.Mode
		}
		declared[ch.Device] = true
	}

	networkDevices := map[string]bool{}
	for _, line := range w.RenderedConnect {
		b.WriteString("Channel=" + line + "\n")
		markNetworkDevice(line, networkDevices)
	}
	for _, line := range w.RenderedBind {
		b.WriteString("Channel=" + line + "\n")
		markNetworkDevice(line, networkDevices)
	}

	for _, dev := range core.StdDevices {
		if declared[dev] || networkDevices[dev] {
			continue
		}
		if dev == "stdin" {
			fmt.Fprintf(&b, "Channel=/dev/null,/dev/stdin,0,0,%d,%d,0,0\n", opts.Limits.Reads, opts.Limits.RBytes)
		} else {
			fmt.Fprintf(&b, "Channel=/dev/null,/dev/%s,0,0,0,0,%d,%d\n", dev, opts.Limits.Writes, opts.Limits.WBytes)
		}
	}

	if opts.UseSelf && opts.ExeMember != "" {
		fmt.Fprintf(&b, "Channel=%s,/dev/self,3,0,%d,%d,0,0\n", opts.ExeMember, opts.Limits.Reads, opts.Limits.RBytes)
	}

	var env strings.Builder
	lo := opts.LocalObject
	if len(w.Env) > 0 || lo != nil {
		env.WriteString("[env]\n")
		if lo != nil {
			switch {
			case lo.Access.Has(core.AccessReadable) || lo.Access.Has(core.AccessAppend):
				fmt.Fprintf(&env, envItemFmt, "CONTENT_LENGTH", lo.Meta["content-length"])
				fmt.Fprintf(&env, envItemFmt, "CONTENT_TYPE", quoteForEnv(nonEmpty(lo.Meta["content-type"], "application/octet-stream")))
				for k, v := range lo.Meta {
					upper := strings.ToUpper(k)
					if strings.HasPrefix(upper, "X-OBJECT-META-") {
						fmt.Fprintf(&env, envItemFmt, "HTTP_"+strings.ReplaceAll(upper, "-", "_"), quoteForEnv(v))
						continue
					}
					for _, hdr := range []string{"X-TIMESTAMP", "ETAG", "CONTENT-ENCODING"} {
						if strings.Contains(upper, hdr) {
							fmt.Fprintf(&env, envItemFmt, "HTTP_"+strings.ReplaceAll(upper, "-", "_"), quoteForEnv(v))
							break
						}
					}
				}
			case lo.Access.Has(core.AccessWritable):
				fmt.Fprintf(&env, envItemFmt, "CONTENT_TYPE", quoteForEnv(nonEmpty(lo.ContentType, "application/octet-stream")))
				for k, v := range lo.Meta {
					fmt.Fprintf(&env, envItemFmt, "HTTP_X_OBJECT_META_"+strings.ToUpper(strings.ReplaceAll(k, "-", "_")), quoteForEnv(v))
				}
			}
			fmt.Fprintf(&env, envItemFmt, "DOCUMENT_ROOT", "/dev/"+lo.Device)
		}
		envVars := make(map[string]string, len(w.Env)+2)
		for k, v := range w.Env {
			envVars[k] = v
		}
		if lo != nil {
			envVars["REQUEST_METHOD"] = "POST"
			envVars["PATH_INFO"] = w.PathInfo
		}
		keys := make([]string, 0, len(envVars))
		for k := range envVars {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if envVars[k] != "" {
				fmt.Fprintf(&env, envItemFmt, k, quoteForEnv(envVars[k]))
			}
		}
	}

	args := "[args]\nargs = " + w.Name
	if w.Args != "" {
		args += " " + w.Args
	}
	args += "\n"

	var mapping strings.Builder
	if len(modeMapping) > 0 {
		mapping.WriteString("[mapping]\n")
		devices := make([]string, 0, len(modeMapping))
		for d := range modeMapping {
			devices = append(devices, d)
		}
		sort.Strings(devices)
		for _, d := range devices {
			fmt.Fprintf(&mapping, "channel=/dev/%s, mode=%s\n", d, modeMapping[d])
		}
	}

	fmt.Fprintf(&b, "Channel=%s,/dev/nvram,3,0,%d,%d,0,0\n", core.TarMemberNVRAM, opts.Limits.Reads, opts.Limits.RBytes)
	fmt.Fprintf(&b, "Node=%d\n", w.ID)
	if w.NameService != "" {
		fmt.Fprintf(&b, "NameServer=%s\n", w.NameService)
	}

	nvramText := fstab.String() + args + env.String() + mapping.String()
	return b.String(), []byte(nvramText)
}

// markNetworkDevice records the std-device name a rendered connect/bind
// tuple targets, so the default-/dev/null pass below doesn't clobber a
// network-bound stdin/stdout/stderr.
func markNetworkDevice(line string, out map[string]bool) {
	parts := strings.SplitN(line, ",", 3)
	if len(parts) < 2 {
		return
	}
	dev := strings.TrimPrefix(parts[1], "/dev/")
	for _, std := range core.StdDevices {
		if dev == std {
			out[dev] = true
			return
		}
	}
}

func nonEmpty(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
