// shebang.go handles a submission body beginning with "#!": the shebang
// line's first token is the executable location, the rest of the line is
// its arguments, and a built-in template is expanded into a one-node
// cluster config around the submitted object as stdin.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package httpapi

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/NVIDIA/zvmd/archive"
	"github.com/NVIDIA/zvmd/cmn/cos"
	"github.com/NVIDIA/zvmd/core"
)

// builtinObjectTemplate runs the submitted script against the triggering
// object as stdin, forwarding stdout/stderr to the client - the
// object-scoped default. builtinAccountTemplate drops the stdin channel
// for an account-level submission with no target object.
const (
	builtinObjectTemplate = `[{"name":"node","exec":{"path":"{.exec_path}","args":"{.exec_args}"},` +
		`"file_list":[{"device":"stdin","path":"{.object_path}"},{"device":"stdout"},{"device":"stderr"}]}]`
	builtinAccountTemplate = `[{"name":"node","exec":{"path":"{.exec_path}","args":"{.exec_args}"},` +
		`"file_list":[{"device":"stdout"},{"device":"stderr"}]}]`
)

// parseShebang splits a script submission into its shebang line and body,
// resolves the executable location, and expands the matching built-in
// template into a one-node job. object is empty for an account- or
// container-scoped submission.
func parseShebang(body []byte, account, container, object string) ([]*core.NodeDesc, error) {
	reader := bufio.NewReader(bytes.NewReader(body))
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, cos.NewErrBadRequest("reading shebang line: %v", err)
	}
	line = strings.TrimPrefix(strings.TrimRight(line, "\r\n"), "#!")
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, cos.NewErrBadRequest("empty shebang line")
	}

	execPath, args, _ := strings.Cut(line, " ")
	loc, err := core.Parse(execPath)
	if err != nil {
		return nil, cos.NewErrBadRequest("invalid shebang executable %q: %v", execPath, err)
	}
	if !core.IsSwiftPath(loc) && !core.IsImagePath(loc) {
		return nil, cos.NewErrBadRequest("shebang executable must be a storage object or image member")
	}
	sysimage := ""
	if core.IsImagePath(loc) {
		if loc.Image == "image" {
			return nil, cos.NewErrBadRequest("must supply image name in shebang url %s", execPath)
		}
		sysimage = loc.Image
	}

	vars := ObjectTemplateVars(account, container, object)
	vars["exec_path"] = execPath
	vars["exec_args"] = strings.TrimSpace(args)

	tmpl := builtinAccountTemplate
	if object != "" {
		tmpl = builtinObjectTemplate
	}
	expanded := Expand(tmpl, vars)
	nodes, err := DecodeJob(bytes.NewReader([]byte(expanded)), int64(len(expanded)))
	if err != nil {
		return nil, err
	}
	if sysimage != "" && len(nodes) == 1 {
		nodes[0].Files = append(nodes[0].Files, core.RawChannel{Device: sysimage})
	}
	return nodes, nil
}

// scriptImage wraps the submitted script, shebang line included, in a
// one-member tar archive named "script" sized to the original
// Content-Length, which becomes the job's user image.
func scriptImage(data []byte) (*tarImageSource, error) {
	var buf bytes.Buffer
	w := archive.NewWriter(&buf, false)
	if err := w.WriteHeader("script", int64(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return &tarImageSource{
		length: int64(buf.Len()),
		body:   io.NopCloser(bytes.NewReader(buf.Bytes())),
	}, nil
}
