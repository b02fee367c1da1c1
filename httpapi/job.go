// job.go decodes the wire shape of a submitted cluster config into
// planner-ready core.NodeDesc values.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package httpapi

import (
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/NVIDIA/zvmd/cmn/cos"
	"github.com/NVIDIA/zvmd/core"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

type fileEntryJSON struct {
	Device      string            `json:"device"`
	Path        string            `json:"path"`
	Mode        string            `json:"mode"`
	Meta        map[string]string `json:"meta"`
	ContentType string            `json:"content_type"`
}

type execJSON struct {
	Path string            `json:"path"`
	Args string            `json:"args"`
	Env  map[string]string `json:"env"`
}

type nodeJSON struct {
	Name      string          `json:"name"`
	Exec      execJSON        `json:"exec"`
	FileList  []fileEntryJSON `json:"file_list"`
	Count     int             `json:"count"`
	Replicate int             `json:"replicate"`
	Connect   []string        `json:"connect"`
}

// DecodeJob reads a JSON cluster config (a top-level array of node
// descriptors) from r, bounded to maxBytes. The +1 read past maxBytes is
// how an oversized body is detected without buffering an unbounded
// request.
func DecodeJob(r io.Reader, maxBytes int64) ([]*core.NodeDesc, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, cos.NewErrBadRequest("reading request body: %v", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, cos.NewErrConfigTooLarge(maxBytes)
	}
	var raw []nodeJSON
	if err := jsonAPI.Unmarshal(data, &raw); err != nil {
		return nil, cos.NewErrUnprocessable("invalid cluster config JSON: %v", err)
	}
	nodes := make([]*core.NodeDesc, 0, len(raw))
	for _, n := range raw {
		nd, err := core.NewNodeDesc(n.Name, n.Exec.Path, n.Exec.Args, n.Exec.Env, n.Count, n.Replicate)
		if err != nil {
			return nil, err
		}
		nd.Connect = n.Connect
		for _, f := range n.FileList {
			nd.Files = append(nd.Files, core.RawChannel{
				Device:      f.Device,
				Path:        f.Path,
				Mode:        f.Mode,
				Meta:        f.Meta,
				ContentType: f.ContentType,
			})
		}
		nodes = append(nodes, nd)
	}
	return nodes, nil
}

// EncodeJob renders nodes back to the wire JSON shape, used by the
// shebang and open-with paths once a one-node config has been built from
// a template.
func EncodeJob(nodes []*core.NodeDesc) ([]byte, error) {
	raw := make([]nodeJSON, 0, len(nodes))
	for _, nd := range nodes {
		files := make([]fileEntryJSON, 0, len(nd.Files))
		for _, f := range nd.Files {
			files = append(files, fileEntryJSON{
				Device: f.Device, Path: f.Path, Mode: f.Mode, Meta: f.Meta, ContentType: f.ContentType,
			})
		}
		execPath := ""
		if nd.Exe != nil {
			execPath = nd.Exe.String()
		}
		raw = append(raw, nodeJSON{
			Name:      nd.Name,
			Exec:      execJSON{Path: execPath, Args: nd.Args, Env: nd.Env},
			FileList:  files,
			Count:     nd.Count,
			Replicate: nd.Replicate,
			Connect:   nd.Connect,
		})
	}
	return jsonAPI.Marshal(raw)
}
