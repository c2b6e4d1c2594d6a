// Package radio defines the LoRaWAN radio link a node drives once per boot.
//
// The link wraps the MAC layer and the radio driver. The boot cycle never
// looks inside the buffers it exchanges with the link: the nonce buffer
// (join counters) and the session buffer (keys, addresses, frame counters)
// are opaque, fixed-size byte slices whose format belongs to the link.
//
// # Activation
//
// Activate with forceJoin=false tries to resume the session previously handed
// to SetSession. It performs no radio traffic and returns ActivationRestored on
// success. With forceJoin=true the link runs an over-the-air join and returns
// ActivationNewSession.
//
// # Uplink Outcomes
//
// Exchange sends one uplink and waits for the receive windows. Both
// OutcomeDownlink and OutcomeNoDownlink are successful exchanges.
package radio
