package bootcycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mash-protocol/lorawan-node/pkg/durable"
	"github.com/mash-protocol/lorawan-node/pkg/log"
	"github.com/mash-protocol/lorawan-node/pkg/radio"
	"github.com/mash-protocol/lorawan-node/pkg/retained"
)

// SleepReason tells why a boot ended in deep sleep.
type SleepReason uint8

const (
	// SleepInterval is the regular sleep after an uplink.
	SleepInterval SleepReason = iota

	// SleepJoinRetry is the backoff sleep after a failed join.
	SleepJoinRetry

	// SleepDefensive is the wait before a forced restart.
	SleepDefensive
)

// String returns a human-readable sleep reason.
func (r SleepReason) String() string {
	switch r {
	case SleepInterval:
		return "INTERVAL"
	case SleepJoinRetry:
		return "JOIN_RETRY"
	case SleepDefensive:
		return "DEFENSIVE"
	default:
		return "UNKNOWN"
	}
}

// Deps are the collaborators of a Controller.
type Deps struct {
	Link     radio.Link
	Platform Platform
	Region   retained.Region
	Store    durable.Opener
}

// Controller drives a node through one boot.
// A Controller is used for a single boot and is not safe for concurrent use.
type Controller struct {
	cfg      Config
	link     radio.Link
	platform Platform
	region   retained.Region
	store    durable.Opener

	logger  *slog.Logger
	journal log.Logger
	now     func() time.Time

	bootID     string
	devEUI     string
	cold       bool
	state      retained.State
	activation radio.Activation
}

// New creates a controller for one boot.
func New(cfg Config, deps Deps) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Link == nil || deps.Platform == nil || deps.Region == nil || deps.Store == nil {
		return nil, errors.Join(ErrInvalidConfig, errors.New("missing dependency"))
	}

	c := &Controller{
		cfg:      cfg,
		link:     deps.Link,
		platform: deps.Platform,
		region:   deps.Region,
		store:    deps.Store,
		logger:   cfg.Logger,
		journal:  cfg.Journal,
		now:      cfg.Now,
		bootID:   uuid.NewString(),
		devEUI:   cfg.Credentials.DevEUI.String(),
	}
	if c.journal == nil {
		c.journal = log.NoopLogger{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// BootID returns the random identifier of this boot.
func (c *Controller) BootID() string {
	return c.bootID
}

// State returns a copy of the retained state as currently held in memory.
func (c *Controller) State() retained.State {
	st := c.state
	st.Session = append([]byte(nil), c.state.Session...)
	return st
}

// Run executes the boot. It only returns on a fatal error or when the
// platform failed to sleep and to restart; on a healthy node the boot ends
// inside Platform.DeepSleep.
func (c *Controller) Run(ctx context.Context) error {
	cause := c.platform.ResetCause()
	c.restoreState(cause)
	c.state.BootCount++

	bootsTotal.WithLabelValues(cause.String()).Inc()
	ev := c.event(log.CategoryBoot, log.StageRestore)
	ev.Boot = &log.BootEvent{
		ResetCause:  cause.String(),
		Cold:        c.cold,
		FailedJoins: c.state.FailedJoins,
		HasSession:  c.state.HasSession(),
	}
	c.journal.Log(ev)
	c.debugLog("boot",
		"bootID", c.bootID,
		"bootCount", c.state.BootCount,
		"resetCause", cause,
		"failedJoins", c.state.FailedJoins)

	if err := c.link.Init(); err != nil {
		err = fmt.Errorf("%w: %v", ErrRadioInit, err)
		c.report(log.StageRadio, err, true)
		return err
	}

	c.restoreNonces()
	c.restoreSession()

	if retry, joined := c.activate(ctx); !joined {
		return c.sleep(ctx, retry, SleepJoinRetry)
	}

	c.uplink(ctx)
	c.saveSession()

	return c.sleep(ctx, c.uplinkInterval(), SleepInterval)
}

// restoreState loads the retained state on a warm boot and starts from zero
// on a cold one.
func (c *Controller) restoreState(cause ResetCause) {
	c.state = retained.State{}
	c.cold = cause.Cold()
	if c.cold {
		return
	}

	st, err := retained.Load(c.region)
	if err != nil {
		c.report(log.StageRestore, fmt.Errorf("load retained state: %w", err), false)
		return
	}
	c.state = *st
}

// restoreFailed reports a restore failure unless the node is on one of its
// first boots, where nothing has been saved yet.
func (c *Controller) restoreFailed(err error) {
	if c.state.BootCount <= c.cfg.QuietBoots {
		c.debugLog("restore failure suppressed", "bootCount", c.state.BootCount, "error", err)
		return
	}
	c.report(log.StageRestore, err, false)
}

func (c *Controller) restoreNonces() {
	store, err := c.store.Open(c.cfg.Namespace)
	if err != nil {
		c.restoreFailed(fmt.Errorf("open durable namespace %q: %w", c.cfg.Namespace, err))
		return
	}
	defer store.Close()

	ok, err := store.Exists(c.cfg.NonceKey)
	if err != nil {
		c.restoreFailed(fmt.Errorf("check nonces: %w", err))
		return
	}
	if !ok {
		c.restoreFailed(ErrNoNonces)
		return
	}

	buf, err := store.Get(c.cfg.NonceKey)
	if err != nil {
		c.restoreFailed(fmt.Errorf("read nonces: %w", err))
		return
	}
	if err := c.link.SetNonces(buf); err != nil {
		c.restoreFailed(fmt.Errorf("restore nonces: %w", err))
	}
}

func (c *Controller) restoreSession() {
	if !c.state.HasSession() {
		c.restoreFailed(ErrNoSession)
		return
	}
	if err := c.link.SetSession(c.state.Session); err != nil {
		c.restoreFailed(fmt.Errorf("restore session: %w", err))
	}
}

// activate resumes the restored session or joins. It returns false with the
// backoff delay when the join failed.
func (c *Controller) activate(ctx context.Context) (time.Duration, bool) {
	act, err := c.link.Activate(ctx, c.cfg.Credentials, false)
	if err == nil {
		activationsTotal.WithLabelValues("resume", Ok).Inc()
		// A link may fall back to a join on its own.
		fresh := act == radio.ActivationNewSession
		if fresh {
			c.state.FailedJoins = 0
		}
		c.logJoin(false, act, nil)
		if fresh {
			c.joined(ctx)
		}
		c.activation = act
		return 0, true
	}
	activationsTotal.WithLabelValues("resume", Fail).Inc()
	c.restoreFailed(fmt.Errorf("resume session: %w", err))

	act, err = c.link.Activate(ctx, c.cfg.Credentials, true)
	if err != nil {
		activationsTotal.WithLabelValues("join", Fail).Inc()
		retry := c.cfg.Backoff.Delay(c.state.FailedJoins)
		c.state.FailedJoins++
		c.logJoin(true, act, err)
		c.infoLog("join failed",
			"failedJoins", c.state.FailedJoins,
			"retryIn", retry,
			"error", err)

		// Counters must survive the retry sleep; the cached session is
		// left as it was.
		if err := retained.Save(c.region, &c.state); err != nil {
			c.report(log.StagePersist, fmt.Errorf("save retained state: %w", err), false)
		}
		return retry, false
	}

	activationsTotal.WithLabelValues("join", Ok).Inc()
	c.state.FailedJoins = 0
	c.logJoin(true, act, nil)
	c.joined(ctx)
	c.activation = act
	return 0, true
}

// joined runs after a join created a new session.
func (c *Controller) joined(ctx context.Context) {
	c.saveNonces()

	if c.cfg.GuardDelay > 0 {
		if err := c.platform.Delay(ctx, c.cfg.GuardDelay); err != nil {
			c.debugLog("guard delay interrupted", "error", err)
		}
	}
}

func (c *Controller) saveNonces() {
	store, err := c.store.Open(c.cfg.Namespace)
	if err != nil {
		c.report(log.StagePersist, fmt.Errorf("open durable namespace %q: %w", c.cfg.Namespace, err), false)
		return
	}
	defer store.Close()

	if err := store.Put(c.cfg.NonceKey, c.link.Nonces()); err != nil {
		c.report(log.StagePersist, fmt.Errorf("write nonces: %w", err), false)
	}
}

func (c *Controller) uplink(ctx context.Context) {
	var payload []byte
	if c.cfg.Payload != nil {
		var err error
		payload, err = c.cfg.Payload(ctx, Status{
			BootCount:   c.state.BootCount,
			FailedJoins: c.state.FailedJoins,
			FCnt:        c.link.FCntUp(),
			Activation:  c.activation,
		})
		if err != nil {
			c.report(log.StageUplink, fmt.Errorf("build payload: %w", err), false)
			payload = nil
		}
	}

	up, err := c.link.Exchange(ctx, payload)
	if err != nil {
		uplinksTotal.WithLabelValues("error").Inc()
		c.report(log.StageUplink, fmt.Errorf("uplink exchange: %w", err), false)
		return
	}
	uplinksTotal.WithLabelValues(up.Outcome.String()).Inc()

	ev := c.event(log.CategoryUplink, log.StageUplink)
	ev.Uplink = &log.UplinkEvent{
		FCnt:        up.FCnt,
		PayloadSize: len(payload),
		Outcome:     up.Outcome.String(),
	}
	if up.Outcome == radio.OutcomeDownlink {
		ev.Uplink.DownlinkPort = up.Port
		ev.Uplink.DownlinkSize = len(up.Payload)
	}
	c.journal.Log(ev)
	c.debugLog("uplink done", "fcnt", up.FCnt, "outcome", up.Outcome)

	if up.Outcome == radio.OutcomeDownlink && len(up.Payload) > 0 && c.cfg.OnDownlink != nil {
		c.cfg.OnDownlink(up.Port, up.Payload)
	}
}

// saveSession caches the post-uplink session together with the counters.
func (c *Controller) saveSession() {
	c.state.Session = c.link.Session()
	if err := retained.Save(c.region, &c.state); err != nil {
		c.report(log.StagePersist, fmt.Errorf("save retained state: %w", err), false)
	}
}

func (c *Controller) uplinkInterval() time.Duration {
	d := c.cfg.UplinkInterval
	if dc, ok := c.link.(radio.DutyCycler); ok {
		if wait := dc.TimeUntilUplink(); wait > d {
			d = wait
		}
	}
	return d
}

// sleep ends the boot. It only returns if the platform could neither sleep
// nor restart.
func (c *Controller) sleep(ctx context.Context, d time.Duration, reason SleepReason) error {
	c.logSleep(d, reason)
	c.infoLog("entering deep sleep", "duration", d, "reason", reason)

	err := c.platform.DeepSleep(d)

	// Anything below runs only when deep sleep is broken.
	if err == nil {
		err = errors.New("DeepSleep returned")
	}
	c.report(log.StageSleep, fmt.Errorf("%w: %v", ErrSleepFailed, err), false)
	c.logSleep(c.cfg.DefensiveDelay, SleepDefensive)
	if err := c.platform.Delay(ctx, c.cfg.DefensiveDelay); err != nil {
		c.debugLog("defensive delay interrupted", "error", err)
	}

	err = fmt.Errorf("%w: restart returned: %v", ErrSleepFailed, c.platform.Restart())
	c.report(log.StageSleep, err, true)
	return err
}

func (c *Controller) event(cat log.Category, stage log.Stage) log.Event {
	return log.Event{
		Timestamp: c.now(),
		BootID:    c.bootID,
		DevEUI:    c.devEUI,
		BootCount: c.state.BootCount,
		Category:  cat,
		Stage:     stage,
	}
}

func (c *Controller) logJoin(forced bool, act radio.Activation, err error) {
	ev := c.event(log.CategoryJoin, log.StageActivate)
	if forced {
		ev.Stage = log.StageJoin
	}
	ev.Join = &log.JoinEvent{
		Forced:      forced,
		Success:     err == nil,
		FailedJoins: c.state.FailedJoins,
	}
	if err == nil {
		ev.Join.Activation = act.String()
	} else {
		ev.Join.Reason = err.Error()
	}
	c.journal.Log(ev)
}

func (c *Controller) logSleep(d time.Duration, reason SleepReason) {
	sleepSeconds.WithLabelValues(reason.String()).Observe(d.Seconds())
	ev := c.event(log.CategorySleep, log.StageSleep)
	ev.Sleep = &log.SleepEvent{Duration: d, Reason: reason.String()}
	c.journal.Log(ev)
}

// report records an error in the journal and the operational log.
func (c *Controller) report(stage log.Stage, err error, fatal bool) {
	reportedErrorsTotal.WithLabelValues(stage.String()).Inc()
	ev := c.event(log.CategoryError, stage)
	ev.Error = &log.ErrorEventData{Message: err.Error(), Fatal: fatal}
	c.journal.Log(ev)

	if c.logger == nil {
		return
	}
	level := slog.LevelWarn
	if fatal {
		level = slog.LevelError
	}
	c.logger.Log(context.Background(), level, "boot cycle error",
		"bootID", c.bootID,
		"stage", stage,
		"error", err)
}

func (c *Controller) infoLog(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

func (c *Controller) debugLog(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
