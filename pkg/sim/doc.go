// Package sim simulates LoRaWAN end devices on a virtual clock.
//
// A Board stands in for the microcontroller: it reports a reset cause, holds
// retained memory and flash, and implements deep sleep by ending the boot
// goroutine. A Network is a minimal network server that enforces DevNonce
// monotonicity and frame counters, and a Radio is the matching link. Node
// ties them to a bootcycle.Controller:
//
//	net := sim.NewNetwork()
//	node, err := sim.NewNode(net, cfg)
//	results, err := node.Run(ctx, 10)
//
// Scripted faults (lost joins, busy channels, failing sleep, power loss) let
// tests and the lorawan-sim command drive a node through its failure paths.
package sim
