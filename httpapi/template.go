// template.go expands the "{.key}" / "{.key=default}" placeholders a
// fetched open-with template is allowed to contain, filling them in from
// the request's account/container/object and any extra substitutions the
// caller supplies.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package httpapi

import "strings"

// TemplateVars is the substitution table available to {.key} placeholders.
type TemplateVars map[string]string

// ObjectTemplateVars builds the well-known substitution set for a request
// against account/container/object. object_path carries the full storage
// URL so a template can splice it straight into a channel path.
func ObjectTemplateVars(account, container, object string) TemplateVars {
	path := "swift://" + account
	if container != "" {
		path += "/" + container
	}
	if object != "" {
		path += "/" + object
	}
	return TemplateVars{
		"account":      account,
		"container":    container,
		"object":       object,
		"object_path":  path,
	}
}

// Expand replaces every "{.key}" or "{.key=default}" placeholder in text
// with vars[key], or default when key is absent. Unknown placeholders with
// no default are left in place verbatim, matching the original parser's
// best-effort substitution rather than failing the whole submission.
func Expand(text string, vars TemplateVars) string {
	var b strings.Builder
	for {
		start := strings.Index(text, "{.")
		if start < 0 {
			b.WriteString(text)
			break
		}
		end := strings.IndexByte(text[start:], '}')
		if end < 0 {
			b.WriteString(text)
			break
		}
		end += start
		b.WriteString(text[:start])
		key := text[start+2 : end]
		def := ""
		hasDef := false
		if idx := strings.IndexByte(key, '='); idx >= 0 {
			def = key[idx+1:]
			key = key[:idx]
			hasDef = true
		}
		if v, ok := vars[key]; ok {
			b.WriteString(v)
		} else if hasDef {
			b.WriteString(def)
		} else {
			b.WriteString(text[start : end+1])
		}
		text = text[end+1:]
	}
	return b.String()
}
