package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes boot events to an slog.Logger.
// Error events are logged at Warn (Error when fatal), everything else at Debug.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("boot_id", event.BootID),
		slog.Uint64("boot_count", uint64(event.BootCount)),
		slog.String("category", event.Category.String()),
		slog.String("stage", event.Stage.String()),
	}
	if event.DevEUI != "" {
		attrs = append(attrs, slog.String("dev_eui", event.DevEUI))
	}

	level := slog.LevelDebug
	switch {
	case event.Boot != nil:
		attrs = append(attrs,
			slog.String("reset_cause", event.Boot.ResetCause),
			slog.Bool("cold", event.Boot.Cold),
			slog.Uint64("failed_joins", uint64(event.Boot.FailedJoins)),
			slog.Bool("has_session", event.Boot.HasSession),
		)
	case event.Join != nil:
		attrs = append(attrs,
			slog.Bool("forced", event.Join.Forced),
			slog.Bool("success", event.Join.Success),
			slog.Uint64("failed_joins", uint64(event.Join.FailedJoins)),
		)
		if event.Join.Activation != "" {
			attrs = append(attrs, slog.String("activation", event.Join.Activation))
		}
		if event.Join.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.Join.Reason))
		}
	case event.Uplink != nil:
		attrs = append(attrs,
			slog.Uint64("fcnt", uint64(event.Uplink.FCnt)),
			slog.Int("payload_size", event.Uplink.PayloadSize),
			slog.String("outcome", event.Uplink.Outcome),
		)
		if event.Uplink.DownlinkSize > 0 {
			attrs = append(attrs,
				slog.Uint64("downlink_port", uint64(event.Uplink.DownlinkPort)),
				slog.Int("downlink_size", event.Uplink.DownlinkSize),
			)
		}
	case event.Sleep != nil:
		attrs = append(attrs,
			slog.Duration("duration", event.Sleep.Duration),
			slog.String("reason", event.Sleep.Reason),
		)
	case event.Error != nil:
		level = slog.LevelWarn
		if event.Error.Fatal {
			level = slog.LevelError
		}
		attrs = append(attrs,
			slog.String("error_msg", event.Error.Message),
			slog.Bool("fatal", event.Error.Fatal),
		)
	}

	a.logger.LogAttrs(context.Background(), level, "boot", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
