// Command lorawan-log views and analyzes boot journals written by
// lorawan-sim or by nodes running with a journal file.
//
// Usage:
//
//	lorawan-log <command> [flags] <journal.cbor>
//
// Examples:
//
//	# View all events
//	lorawan-log view boot.cbor
//
//	# View the errors of one node
//	lorawan-log view --category error --dev-eui 70B3D57ED0000001 boot.cbor
//
//	# Per-node join and uplink statistics
//	lorawan-log stats boot.cbor
//
//	# Export to CSV
//	lorawan-log export --format csv -o boot.csv boot.cbor
package main

import (
	"os"

	"github.com/mash-protocol/lorawan-node/cmd/lorawan-log/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
