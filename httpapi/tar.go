// tar.go handles a submitted tar-MIME body: the first archive member
// matching one of two well-known names supplies the cluster config, and
// the rest is forwarded as the shared user image.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package httpapi

import (
	"bytes"
	"io"

	"github.com/NVIDIA/zvmd/archive"
	"github.com/NVIDIA/zvmd/cmn/cos"
	"github.com/NVIDIA/zvmd/core"
)

// wellKnownConfigNames are the tar member names searched for a cluster
// config when a submission arrives as a tar archive, in search order.
var wellKnownConfigNames = []string{"job.json", "config.json"}

// tarJob is a decoded tar submission: the cluster config plus an image
// source built from every remaining member (fed to
// orchestrator.Request.UserImage).
type tarJob struct {
	nodes []*core.NodeDesc
	image io.ReadCloser
	// imageLength is -1 when no non-config members were present.
	imageLength int64
}

// parseTarSubmission reads the whole tar body into memory (bounded by
// maxBytes, the same zerovm_maxconfig ceiling applied to a JSON
// submission) so the config member can be found regardless of its
// position, then re-streams the remaining members as one concatenated
// image source.
func parseTarSubmission(r io.Reader, maxBytes int64) (*tarJob, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, cos.NewErrBadRequest("reading request body: %v", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, cos.NewErrConfigTooLarge(maxBytes)
	}

	reader := archive.NewReader(bytes.NewReader(data), false)
	var configBody []byte
	var foundConfig bool
	var imageBuf bytes.Buffer
	var haveImage bool

	for {
		name, size, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, cos.NewErrBadRequest("malformed tar submission: %v", err)
		}
		isConfig := !foundConfig && isWellKnownConfigName(name)
		if isConfig {
			buf := make([]byte, size)
			if _, err := io.ReadFull(reader, buf); err != nil {
				return nil, cos.NewErrBadRequest("reading tar config member: %v", err)
			}
			configBody = buf
			foundConfig = true
			continue
		}
		if _, err := io.Copy(&imageBuf, reader); err != nil {
			return nil, cos.NewErrBadRequest("reading tar image member %s: %v", name, err)
		}
		haveImage = true
	}
	if !foundConfig {
		return nil, cos.NewErrBadRequest("tar submission has no recognized config member (%v)", wellKnownConfigNames)
	}

	nodes, err := DecodeJob(bytes.NewReader(configBody), maxBytes)
	if err != nil {
		return nil, err
	}

	job := &tarJob{nodes: nodes, imageLength: -1}
	if haveImage {
		job.image = io.NopCloser(bytes.NewReader(imageBuf.Bytes()))
		job.imageLength = int64(imageBuf.Len())
	}
	return job, nil
}

func isWellKnownConfigName(name string) bool {
	for _, n := range wellKnownConfigNames {
		if n == name {
			return true
		}
	}
	return false
}
