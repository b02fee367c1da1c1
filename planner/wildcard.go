/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package planner

import (
	"regexp"
	"strings"

	"github.com/NVIDIA/zvmd/cmn/cos"
	"github.com/NVIDIA/zvmd/core"
)

// wildcardMask turns a path-with-'*' into a regexp: literal surroundings
// are escaped, each '*' becomes either a non-capturing ".*" (capture=false,
// used to list matching containers/objects) or a capturing "(.*)"
// (capture=true, used once per worker to remember what a read wildcard
// matched so a write wildcard can project it back).
func wildcardMask(pattern string, capture bool) *regexp.Regexp {
	rep := ".*"
	if capture {
		rep = "(.*)"
	}
	escaped := strings.ReplaceAll(regexp.QuoteMeta(pattern), `\*`, rep)
	return regexp.MustCompile("^" + escaped + "$")
}

// captureWildcards reports the substrings a wildcard read pattern matched
// in resolved, in left-to-right order.
func captureWildcards(pattern, resolved string) []string {
	m := wildcardMask(pattern, true).FindStringSubmatch(resolved)
	if m == nil {
		return nil
	}
	return m[1:]
}

// projectWildcards replaces each '*' in param, left to right, with the next
// entry of wildcards. A leftover '*' once wildcards is exhausted is an
// error.
func projectWildcards(param string, wildcards []string) (string, error) {
	if !strings.Contains(param, "*") {
		return param, nil
	}
	var b strings.Builder
	wi := 0
	for i := 0; i < len(param); i++ {
		if param[i] == '*' {
			if wi >= len(wildcards) {
				return "", cos.NewErrConfigParse("cannot resolve wildcard in %q", param)
			}
			b.WriteString(wildcards[wi])
			wi++
			continue
		}
		b.WriteByte(param[i])
	}
	return b.String(), nil
}

// findObjects enumerates all StorageObject locations matching a wildcard
// path: when the container segment has a wildcard, containers are listed
// first and then objects within each; otherwise objects are listed
// directly in the given container. Empty result is an error, never
// silently returned.
func (p *Planner) findObjects(loc *core.Location) ([]*core.Location, error) {
	var result []*core.Location
	if strings.Contains(loc.Container, "*") {
		cmask := wildcardMask(loc.Container, false)
		containers, err := p.listAccount(loc.Account, cmask)
		if err != nil {
			return nil, cos.NewErrConfigParse("error querying account %s: %v", loc.Account, err)
		}
		var omask *regexp.Regexp
		if loc.Object != "" {
			omask = wildcardMask(loc.Object, false)
		}
		for _, container := range containers {
			objs, err := p.listContainer(loc.Account, container, omask)
			if err != nil {
				return nil, cos.NewErrConfigParse("error querying container %s: %v", container, err)
			}
			for _, obj := range objs {
				result = append(result, core.NewSwiftPath(loc.Account, container, obj))
			}
		}
	} else {
		omask := wildcardMask(loc.Object, false)
		objs, err := p.listContainer(loc.Account, loc.Container, omask)
		if err != nil {
			return nil, cos.NewErrConfigParse("error querying container %s: %v", loc.Container, err)
		}
		for _, obj := range objs {
			result = append(result, core.NewSwiftPath(loc.Account, loc.Container, obj))
		}
	}
	if len(result) == 0 {
		return nil, cos.NewErrConfigParse("no objects found in path %s", loc.Path())
	}
	return result, nil
}
