// Package bootcycle runs one boot of a battery-powered LoRaWAN node.
//
// A node spends almost all of its life in deep sleep. Waking from deep sleep
// is a reset: the call stack and ordinary RAM are gone and execution starts
// from the top. Controller.Run is therefore a single linear procedure that is
// invoked once per boot by the platform; the recurrence across boots is the
// platform calling it again after each wake, not a loop in this package.
//
// # Boot Sequence
//
//  1. Restore: cold boot (power-on, brownout) starts from a zeroed State;
//     warm boot (deep sleep, soft reset, watchdog) loads it from the
//     retained region.
//  2. Increment the boot counter and bring up the radio (fatal on failure).
//  3. Hand the durable nonces and the cached session to the radio link.
//  4. Resume the session. If that fails, attempt one over-the-air join.
//  5. On join failure: increment the failed-join streak, save the retained
//     state and sleep for the backoff delay.
//  6. On join success: store the nonces durably, reset the streak, wait the
//     guard delay.
//  7. Send one uplink, save the session, sleep for the uplink interval.
//
// # Error Reporting
//
// Restore failures (no nonces, no session, resume refused) are expected on
// the first boots after power loss and are only reported once the boot
// counter exceeds Config.QuietBoots. Storage and uplink errors are always
// reported but never block the cycle. A failed radio initialization is the
// only fatal error.
//
// # Sleep Failure
//
// Platform.DeepSleep does not return when it succeeds. If it does return, the
// power-management path is broken; the controller waits DefensiveDelay and
// forces a restart instead of going around again, which would otherwise turn
// into a tight uplink loop.
package bootcycle
