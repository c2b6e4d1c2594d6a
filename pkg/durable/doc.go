// Package durable stores small byte buffers that must survive a full power
// loss, such as the LoRaWAN join nonces.
//
// Durable storage is typically flash with a limited number of erase cycles, so
// callers write rarely: once per successful join. Keys are grouped into
// namespaces; a Store is an open handle on one namespace and is closed after
// use. Nothing in this package makes writes to different keys atomic.
//
// Backends:
//   - Memory: map-backed, for tests and simulated flash
//   - Dir: one file per key on an afero filesystem, replaced atomically
//   - SQLite: a single kv table, for hosted nodes and gateways
package durable
