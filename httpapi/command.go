// command.go resolves the URL command form "/<command>/<account>/..."
// into a regular execute submission: the target object's content type
// selects a template stored in a per-account registry container (".zvm"),
// cached briefly so a burst of identical requests doesn't hammer storage.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package httpapi

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/NVIDIA/zvmd/cmn/cos"
)

// commandNames are the allowed <command> path segments.
var commandNames = map[string]bool{"open": true, "open-with": true}

// isCommand reports whether the first URL segment names an allowed
// command, so the router can tell a command-form request apart from a
// direct /<account>/... execute submission.
func isCommand(seg string) bool { return commandNames[seg] }

// resolveTemplate fetches (or returns a cached) open-with template for
// account/container/object, keyed by the object's storage content type.
// maxBytes bounds the template the same way a submission body is bounded.
func (h *Handler) resolveTemplate(ctx context.Context, account, container, object string, maxBytes int64) (string, error) {
	res, err := h.Storage.Get(ctx, fmt.Sprintf("/%s/%s/%s", account, container, object))
	if err != nil {
		return "", cos.NewErrBadRequest("resolving target object: %v", err)
	}
	defer res.Body.Close()

	cacheKey := account + "|" + sanitizeContentType(res.ContentType)
	if h.Templates != nil {
		if v, ok := h.Templates.Get(cacheKey); ok {
			return v, nil
		}
	}

	templatePath := fmt.Sprintf("/%s/%s/%s", account, h.Cfg.Registry.ContainerName, sanitizeContentType(res.ContentType))
	tres, err := h.Storage.Get(ctx, templatePath)
	if err != nil {
		return "", cos.NewErrBadRequest("no open-with template registered for content type %q", res.ContentType)
	}
	defer tres.Body.Close()
	if tres.ContentLength > maxBytes {
		return "", cos.NewErrTemplateTooLarge(maxBytes)
	}
	data, err := io.ReadAll(io.LimitReader(tres.Body, maxBytes+1))
	if err != nil {
		return "", cos.NewErrBadRequest("reading open-with template: %v", err)
	}
	if int64(len(data)) > maxBytes {
		return "", cos.NewErrTemplateTooLarge(maxBytes)
	}

	tmpl := string(data)
	if h.Templates != nil {
		_ = h.Templates.Set(cacheKey, tmpl, h.Cfg.Registry.CacheTTL)
	}
	return tmpl, nil
}

func sanitizeContentType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if ct == "" {
		return "application-octet-stream"
	}
	return strings.NewReplacer("/", "-", ";", "-", " ", "").Replace(ct)
}
