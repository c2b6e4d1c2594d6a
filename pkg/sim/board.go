package sim

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/mash-protocol/lorawan-node/pkg/bootcycle"
	"github.com/mash-protocol/lorawan-node/pkg/durable"
	"github.com/mash-protocol/lorawan-node/pkg/retained"
)

// Board errors.
var (
	ErrSleepFault   = errors.New("injected deep sleep fault")
	ErrRestartFault = errors.New("injected restart fault")
)

// Exit tells how a boot ended.
type Exit uint8

const (
	// ExitReturned means Run returned to the caller.
	ExitReturned Exit = iota

	// ExitDeepSleep means the boot ended in deep sleep.
	ExitDeepSleep

	// ExitRestart means the boot ended in a forced restart.
	ExitRestart
)

// String returns a human-readable exit.
func (e Exit) String() string {
	switch e {
	case ExitReturned:
		return "RETURNED"
	case ExitDeepSleep:
		return "DEEP_SLEEP"
	case ExitRestart:
		return "RESTART"
	default:
		return "UNKNOWN"
	}
}

// BoardConfig configures a simulated board.
type BoardConfig struct {
	// RegionSize is the retained memory size (default retained.DefaultRegionSize).
	RegionSize int

	// Start is the initial virtual time (default 2024-01-01 UTC).
	Start time.Time
}

// Board is a simulated microcontroller board. It implements
// bootcycle.Platform on a virtual clock.
//
// DeepSleep and Restart end the calling goroutine with runtime.Goexit, so the
// controller must run on a goroutine of its own, one boot per goroutine.
// Board.Boot does that.
type Board struct {
	mu sync.Mutex

	cause  bootcycle.ResetCause
	now    time.Time
	region *retained.MemoryRegion
	flash  *durable.Memory

	sleepFaults   int
	restartFaults int

	exit  Exit
	slept time.Duration
	boots int
}

var _ bootcycle.Platform = (*Board)(nil)

// NewBoard creates a powered-off board with blank retained memory and empty
// flash. The first boot is a power-on reset.
func NewBoard(cfg BoardConfig) *Board {
	if cfg.RegionSize <= 0 {
		cfg.RegionSize = retained.DefaultRegionSize
	}
	if cfg.Start.IsZero() {
		cfg.Start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return &Board{
		cause:  bootcycle.ResetPowerOn,
		now:    cfg.Start,
		region: retained.NewMemoryRegion(cfg.RegionSize),
		flash:  durable.NewMemory(),
	}
}

// Region returns the retained memory.
func (b *Board) Region() *retained.MemoryRegion { return b.region }

// Flash returns the durable store.
func (b *Board) Flash() *durable.Memory { return b.flash }

// Now returns the virtual time.
func (b *Board) Now() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now
}

// ResetCause returns the reason of the current boot.
func (b *Board) ResetCause() bootcycle.ResetCause {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cause
}

// SetResetCause overrides the reason of the next boot.
func (b *Board) SetResetCause(c bootcycle.ResetCause) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cause = c
}

// PowerLoss cuts power: retained memory is lost and the next boot is a
// power-on reset. Flash survives.
func (b *Board) PowerLoss() {
	b.region.Wipe(0xff)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cause = bootcycle.ResetPowerOn
}

// FailSleeps makes the next n DeepSleep calls return an error.
func (b *Board) FailSleeps(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sleepFaults = n
}

// FailRestarts makes the next n Restart calls return an error.
func (b *Board) FailRestarts(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.restartFaults = n
}

// Slept returns the total virtual time spent in deep sleep.
func (b *Board) Slept() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.slept
}

// Boots returns the number of boots started with Boot.
func (b *Board) Boots() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.boots
}

// DeepSleep advances the clock by d and resets the board. It does not return
// unless a sleep fault is injected.
func (b *Board) DeepSleep(d time.Duration) error {
	b.mu.Lock()
	if b.sleepFaults > 0 {
		b.sleepFaults--
		b.mu.Unlock()
		return ErrSleepFault
	}
	b.now = b.now.Add(d)
	b.slept += d
	b.cause = bootcycle.ResetDeepSleep
	b.exit = ExitDeepSleep
	b.mu.Unlock()

	runtime.Goexit()
	return nil
}

// Restart resets the board. It does not return unless a restart fault is
// injected.
func (b *Board) Restart() error {
	b.mu.Lock()
	if b.restartFaults > 0 {
		b.restartFaults--
		b.mu.Unlock()
		return ErrRestartFault
	}
	b.cause = bootcycle.ResetSoftware
	b.exit = ExitRestart
	b.mu.Unlock()

	runtime.Goexit()
	return nil
}

// Delay advances the virtual clock by d.
func (b *Board) Delay(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = b.now.Add(d)
	return nil
}

// Boot runs fn as one boot on a fresh goroutine and reports how it ended.
// err is only set when fn returned.
func (b *Board) Boot(fn func() error) (exit Exit, err error) {
	b.mu.Lock()
	b.boots++
	b.exit = ExitReturned
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		err = fn()
	}()
	<-done

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exit, err
}
