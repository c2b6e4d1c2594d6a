// Package retained persists the per-boot state of a LoRaWAN node in memory
// that survives deep sleep and soft resets but not a full power loss.
//
// The physical mechanism differs between platforms (RTC slow memory, backup
// SRAM, a tmpfs file on a hosted gateway). All of them are reached through the
// Region interface, a fixed-size byte area with positional reads and writes.
//
// # Frame Format
//
// State is stored as a single frame at offset 0:
//
//	magic (4) | payload length (2, big endian) | CRC-32 IEEE of payload (4) | CBOR payload
//
// A region that was never written, or whose content did not survive a power
// loss, fails the magic or CRC check and is reported as ErrBlank or ErrCorrupt.
// The whole frame is written with one WriteAt call, so the boot counter, the
// failed-join streak and the session buffer are always persisted together.
package retained
