// Command lorawan-sim boots simulated LoRaWAN end devices through repeated
// deep sleep cycles against an in-process network server.
//
// Usage:
//
//	lorawan-sim <command> [flags]
//
// Examples:
//
//	# Run a fleet and write a boot journal
//	lorawan-sim run --fleet fleet.yaml --journal boot.cbor
//
//	# Serve Prometheus metrics while the fleet runs
//	lorawan-sim run --fleet fleet.yaml --metrics :9100
//
//	# Print the join retry schedule
//	lorawan-sim backoff 6
//
//	# Inspect a node's retained memory file
//	lorawan-sim retained /dev/shm/lorawan/70B3D57ED0000001.ram
package main

import (
	"os"

	"github.com/mash-protocol/lorawan-node/cmd/lorawan-sim/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
