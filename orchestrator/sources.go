/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package orchestrator

import (
	"bytes"
	"context"
	"io"
	"sort"

	"github.com/NVIDIA/zvmd/archive"
	"github.com/NVIDIA/zvmd/cmn/cos"
	"github.com/NVIDIA/zvmd/core"
	"github.com/NVIDIA/zvmd/manifest"
)

// memSource is an in-memory data source (a worker's sysmap), read once
// from a bytes.Reader per Open call.
type memSource struct{ data []byte }

func (m *memSource) ContentLength() int64 { return int64(len(m.data)) }
func (m *memSource) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.data)), nil
}

// fetchedSource wraps an already-performed storage GET: opened exactly
// once by the fan-out driver, since source assembly has already started
// the GET to learn its content length for the size precomputation.
type fetchedSource struct {
	length int64
	body   io.ReadCloser
}

func (f *fetchedSource) ContentLength() int64 { return f.length }
func (f *fetchedSource) Open(context.Context) (io.ReadCloser, error) { return f.body, nil }

// target is one (worker, device) fan-out recipient of a
// source, in the order the source's targets are declared.
type target struct {
	workerIdx int
	device    string
}

// sourceSpec is an intermediate data-source assembly: the eventual
// fanout.Source plus the ordered list of (worker, device) it feeds.
// Finalized into []*fanout.Source once all worker connections exist
// (buildFanoutSources).
type sourceSpec struct {
	name    string // diagnostic only
	src     DataSource
	targets []target
}

// assembleSources stages the job's data sources: one sysmap source per
// worker, a deduplicated executable source per distinct exe path, a
// deduplicated fetched-object source per distinct readable storage path,
// and (if enabled) one shared user-image source fanned to every worker.
func (o *Orchestrator) assembleSources(ctx context.Context) ([]*sourceSpec, error) {
	var specs []*sourceSpec

	// Sysmap sources come first so every connection's first tar member is
	// "sysmap"; response demux relies on this.
	for i, w := range o.req.Workers {
		manifestText, nvram := manifest.Build(w, o.manifestOpts(w))
		exeMember := ""
		if w.Exe != nil && w.Exe.Kind == core.LocStorageObject {
			exeMember = core.TarMemberBoot
		}
		body, err := marshalSysmap(w, manifestText, nvram, exeMember)
		if err != nil {
			return nil, err
		}
		specs = append(specs, &sourceSpec{
			name:    core.TarMemberSysmap + ":" + w.Name,
			src:     &memSource{data: body},
			targets: []target{{workerIdx: i, device: core.TarMemberSysmap}},
		})
		// the nvram member itself travels alongside sysmap as its own
		// local-disk file on the backend; it's embedded in the sysmap's
		// Nvram field above rather than as a separate tar member, since
		// the manifest's own Channel=nvram,... line names "nvram" as a
		// local path the backend resolves from that field.
	}

	exeSpecs := map[string]*sourceSpec{}
	var exeOrder []string
	fetchSpecs := map[string]*sourceSpec{}
	var fetchOrder []string

	for i, w := range o.req.Workers {
		if w.Exe != nil && w.Exe.Kind == core.LocStorageObject {
			key := w.Exe.Path()
			if spec, ok := exeSpecs[key]; ok {
				spec.targets = append(spec.targets, target{workerIdx: i, device: core.TarMemberBoot})
			} else {
				ds, err := o.openExe(ctx, w.Exe)
				if err != nil {
					return nil, err
				}
				spec := &sourceSpec{
					name:    core.TarMemberBoot + ":" + key,
					src:     ds,
					targets: []target{{workerIdx: i, device: core.TarMemberBoot}},
				}
				exeSpecs[key] = spec
				exeOrder = append(exeOrder, key)
			}
		}

		for _, ch := range w.Channels {
			if !ch.Access.Has(core.AccessReadable) && !ch.Access.Has(core.AccessAppend) {
				continue
			}
			if !core.IsSwiftPath(ch.Path) {
				continue
			}
			if _, sysimg := o.req.Config.SysimageDevices[ch.Device]; sysimg {
				continue
			}
			key := ch.Path.Path()
			if spec, ok := fetchSpecs[key]; ok {
				spec.targets = append(spec.targets, target{workerIdx: i, device: ch.Device})
				continue
			}
			res, err := o.req.Storage.Get(ctx, key)
			if err != nil {
				return nil, err
			}
			if res.Status >= 300 {
				res.Body.Close()
				return nil, &cos.ErrBackend{Status: res.Status, Reason: "fetching " + key}
			}
			ch.ContentType = nonEmptyCT(ch.ContentType, res.ContentType)
			for k, v := range res.Headers {
				ch.Meta[k] = v
			}
			spec := &sourceSpec{
				name:    "fetch:" + key,
				src:     &fetchedSource{length: res.ContentLength, body: res.Body},
				targets: []target{{workerIdx: i, device: ch.Device}},
			}
			fetchSpecs[key] = spec
			fetchOrder = append(fetchOrder, key)
		}
	}

	sort.Strings(exeOrder)
	for _, k := range exeOrder {
		specs = append(specs, exeSpecs[k])
	}
	sort.Strings(fetchOrder)
	for _, k := range fetchOrder {
		specs = append(specs, fetchSpecs[k])
	}

	if o.req.AddUserImage && o.req.UserImage != nil {
		var targets []target
		for i, w := range o.req.Workers {
			if w.Channel("image") != nil {
				targets = append(targets, target{workerIdx: i, device: "image"})
			}
		}
		specs = append(specs, &sourceSpec{name: "image", src: o.req.UserImage, targets: targets})
	}

	return specs, nil
}

// openExe returns the executable's data source: a preloaded one if the
// caller supplied one for this path, otherwise a fresh storage GET.
func (o *Orchestrator) openExe(ctx context.Context, loc *core.Location) (DataSource, error) {
	if ds, ok := o.req.PreloadedExe[loc.Path()]; ok {
		return ds, nil
	}
	res, err := o.req.Storage.Get(ctx, loc.Path())
	if err != nil {
		return nil, err
	}
	if res.Status >= 300 {
		res.Body.Close()
		return nil, &cos.ErrBackend{Status: res.Status, Reason: "fetching executable " + loc.Path()}
	}
	return &fetchedSource{length: res.ContentLength, body: res.Body}, nil
}

func (o *Orchestrator) manifestOpts(w *core.Worker) manifest.Opts {
	opts := o.req.Manifest(w)
	if w.Exe != nil {
		switch w.Exe.Kind {
		case core.LocStorageObject:
			opts.ExeMember = core.TarMemberBoot
		case core.LocImageMember:
			// the sysimage fstab entry mounts the image at /, so the
			// executable resolves to its member path after mount
			opts.ExeMember = "/" + w.Exe.Member
		}
	}
	if o.req.LocalObject != nil {
		opts.LocalObject = o.req.LocalObject(w)
	}
	return opts
}

func nonEmptyCT(existing, fetched string) string {
	if existing != "" {
		return existing
	}
	return fetched
}

// precomputeSizes adds, for every (source, worker) fan-out pair, the
// tar-header + padded-payload cost to that worker's precomputed Size,
// which becomes its outbound Content-Length.
func (o *Orchestrator) precomputeSizes(specs []*sourceSpec) {
	for _, w := range o.req.Workers {
		w.Size = 0
	}
	for _, spec := range specs {
		cost := archive.MemberSize(spec.src.ContentLength())
		for _, t := range spec.targets {
			o.req.Workers[t.workerIdx].Size += cost
		}
	}
}
