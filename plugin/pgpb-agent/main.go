// Copyright 2026 The PageBackup Authors.
//
// SPDX-License-Identifier: Apache-2.0

// pgpb-agent is the standalone remote-agent subprocess: launched by
// `pgpb backup --remote-agent` through remoteagent.Dial, it serves the
// send_pages RPC contract (D1) over the plugin's stdin/stdout handshake.
package main

import (
	"github.com/pgprobackup-go/pagebackup/internal/remoteagent"
)

func main() {
	remoteagent.Serve(remoteagent.LocalSource{})
}
