/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package core

// Well-known tar member names shared by the manifest builder and the
// orchestrator's archive writer/reader: the sandbox's own local file
// system is assembled by unpacking one tar archive per worker, and the
// nvram/manifest channel lines reference these names as their local path.
const (
	TarMemberSysmap = "sysmap"
	TarMemberBoot   = "boot"
	TarMemberNVRAM  = "nvram"
)
