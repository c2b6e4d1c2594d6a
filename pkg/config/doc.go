// Package config loads the YAML fleet file of the lorawan-sim command.
//
// A fleet file lists the simulated devices with their credentials and
// scripted faults, the storage backend for their flash, and defaults for the
// boot cycle:
//
//	defaults:
//	  uplink_interval: 5m
//	  duty_cycle: 0.01
//	  boots: 20
//	storage:
//	  backend: sqlite
//	  path: ./flash
//	journal: ./boot.cbor
//	devices:
//	  - name: meter-1
//	    dev_eui: "70B3D57ED0000001"
//	    join_eui: "0000000000000001"
//	    app_key: "2B7E151628AED2A6ABF7158809CF4F3C"
//	    faults:
//	      lose_joins: 2
package config
