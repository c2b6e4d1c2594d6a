// Package log provides the boot journal of a LoRaWAN node.
//
// Every boot emits a short sequence of events: the boot itself (reset cause,
// counters), activation or join, the uplink exchange, and the sleep that ends
// the boot. Reported errors get their own event. The journal is separate from
// operational logging (slog): it is a machine-readable trace that can be
// inspected after the fact with the lorawan-log CLI.
//
// # Basic Usage
//
//	// For development: log to console via slog
//	cfg.Journal = log.NewSlogAdapter(slog.Default())
//
//	// For simulations: write to a binary file
//	cfg.Journal, _ = log.NewFileLogger("/var/log/lorawan/node.blog")
//
//	// Both: use MultiLogger
//	cfg.Journal = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Correlation
//
// All events of one boot share a BootID (a random UUID). Events of different
// nodes written to the same file are told apart by DevEUI.
//
// # File Format
//
// Journal files are a concatenation of CBOR-encoded events using integer map
// keys, conventionally with the .blog extension. A file cut short by power
// loss is still readable up to its last complete record, and the partial
// record is dropped when a FileLogger reopens the file.
package log
