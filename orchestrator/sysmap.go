/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package orchestrator

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/NVIDIA/zvmd/core"
)

// sysmapChannel is one channel's entry in a worker's sysmap data source:
// the subset of its fields the backend needs to assemble the sandbox, and
// the subset the backend echoes back updated (content type / meta) once
// the object state it resolved locally is known.
type sysmapChannel struct {
	Device      string            `json:"device"`
	ContentType string            `json:"content_type,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
}

type sysmap struct {
	ID          int             `json:"id"`
	Name        string          `json:"name"`
	Manifest    string          `json:"manifest"`
	Nvram       string          `json:"nvram"`
	ExeMember   string          `json:"exe_member,omitempty"`
	Channels    []sysmapChannel `json:"channels"`
}

func marshalSysmap(w *core.Worker, manifestText string, nvram []byte, exeMember string) ([]byte, error) {
	sm := sysmap{ID: w.ID, Name: w.Name, Manifest: manifestText, Nvram: string(nvram), ExeMember: exeMember}
	for _, ch := range w.Channels {
		sm.Channels = append(sm.Channels, sysmapChannel{Device: ch.Device, ContentType: ch.ContentType, Meta: ch.Meta})
	}
	return jsoniter.Marshal(sm)
}

// applySysmapReply unmarshals a backend's returned sysmap member and
// back-propagates content_type/meta onto w's channels, so the output PUTs
// that follow carry what the sandbox actually produced.
func applySysmapReply(w *core.Worker, body []byte) error {
	var sm sysmap
	if err := jsoniter.Unmarshal(body, &sm); err != nil {
		return err
	}
	for _, update := range sm.Channels {
		if ch := w.Channel(update.Device); ch != nil {
			if update.ContentType != "" {
				ch.ContentType = update.ContentType
			}
			for k, v := range update.Meta {
				if ch.Meta == nil {
					ch.Meta = map[string]string{}
				}
				ch.Meta[k] = v
			}
		}
	}
	return nil
}
