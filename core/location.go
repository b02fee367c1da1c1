/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package core

import (
	"fmt"
	"net/url"
	"strings"
)

// LocKind tags the variant held by a Location.
type LocKind int

const (
	LocStorageObject LocKind = iota
	LocImageMember
	LocNodeEndpoint
	LocOpaque
)

// Location is a closed sum type over the four places a channel path, or a
// node's executable, can point at. Construction always runs through Parse,
// which rejects control characters.
type Location struct {
	Kind LocKind
	raw  string

	// LocStorageObject
	Account   string
	Container string
	Object    string

	// LocImageMember
	Image  string
	Member string
	Device string // optional device hint inside the image

	// LocNodeEndpoint
	NodeName   string
	DeviceName string

	// LocOpaque
	URL string
}

func (l *Location) String() string { return l.raw }

// HasControlChars reports whether s contains any ASCII control character,
// the single invariant every Location (and node/device name) must satisfy.
func HasControlChars(s string) bool {
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return true
		}
	}
	return false
}

// Path renders the account/container/object form used by storage requests
// and by the planner's wildcard path matching.
func (l *Location) Path() string {
	switch l.Kind {
	case LocStorageObject:
		if l.Object == "" {
			return "/" + l.Account + "/" + l.Container
		}
		return "/" + l.Account + "/" + l.Container + "/" + l.Object
	case LocImageMember:
		return "/" + l.Image + "/" + l.Member
	default:
		return l.URL
	}
}

// IsSwiftPath reports whether the location names an account+container
// storage path with both segments non-empty.
func IsSwiftPath(l *Location) bool {
	return l != nil && l.Kind == LocStorageObject && l.Account != "" && l.Container != ""
}

// IsZvmPath reports whether the location refers to another job's device.
func IsZvmPath(l *Location) bool { return l != nil && l.Kind == LocNodeEndpoint }

// IsImagePath reports whether the location names a packaged-image member.
func IsImagePath(l *Location) bool { return l != nil && l.Kind == LocImageMember }

// Parse parses a raw path string (one of the swift://, zvm://, image://
// schemes, or a bare URL) into a Location. An empty string returns (nil, nil):
// "no path given" is not an error at this layer.
func Parse(raw string) (*Location, error) {
	if raw == "" {
		return nil, nil
	}
	if HasControlChars(raw) {
		return nil, fmt.Errorf("invalid path %q: contains control characters", raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", raw, err)
	}
	switch u.Scheme {
	case "swift":
		return parseSwiftPath(raw, u), nil
	case "zvm":
		host := u.Host
		dev := strings.TrimPrefix(u.Path, "/")
		if host == "" {
			return nil, fmt.Errorf("invalid zvm path %q: missing node name", raw)
		}
		return &Location{Kind: LocNodeEndpoint, raw: raw, NodeName: host, DeviceName: dev}, nil
	case "image":
		loc := &Location{Kind: LocImageMember, raw: raw, Image: u.Host}
		member := strings.TrimPrefix(u.Path, "/")
		if loc.Image == "" {
			loc.Image, member, _ = strings.Cut(member, "/")
		}
		loc.Member = member
		return loc, nil
	default:
		return &Location{Kind: LocOpaque, raw: raw, URL: raw}, nil
	}
}

func parseSwiftPath(raw string, u *url.URL) *Location {
	path := strings.TrimPrefix(u.Path, "/")
	if u.Host != "" {
		path = u.Host + "/" + path
	}
	parts := strings.SplitN(path, "/", 3)
	loc := &Location{Kind: LocStorageObject, raw: raw}
	if len(parts) > 0 {
		loc.Account = parts[0]
	}
	if len(parts) > 1 {
		loc.Container = parts[1]
	}
	if len(parts) > 2 {
		loc.Object = parts[2]
	}
	return loc
}

// NewSwiftPath constructs a StorageObject Location directly, used by the
// planner when rendering a wildcard match or a write-path projection.
func NewSwiftPath(account, container, object string) *Location {
	raw := fmt.Sprintf("swift://%s/%s/%s", account, container, object)
	return &Location{Kind: LocStorageObject, raw: raw, Account: account, Container: container, Object: object}
}
