// Package backoff computes how long a LoRaWAN node sleeps after a failed join.
//
// The policy is linear then capped:
//
//	delay = min((streak + 1) * 1 minute, 3 minutes)
//
// where streak is the number of consecutive failed joins before the current
// one. The streak survives deep sleep, so the delay keeps escalating across
// boots until a join succeeds:
//
//  1. First failure: 60 seconds
//  2. Second failure: 120 seconds
//  3. Third and later failures: 180 seconds
//
// Retries are unbounded. A misconfigured node keeps retrying at the cap.
package backoff
