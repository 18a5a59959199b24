package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	vcerrors "github.com/systmms/vaultctl/internal/errors"
	"github.com/systmms/vaultctl/internal/logging"
)

// EverySpec turns an interval into a cron descriptor.
func EverySpec(d time.Duration) string {
	return "@every " + d.String()
}

// ValidateSchedule parses spec the way Schedule will.
func ValidateSchedule(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return vcerrors.ConfigError{
			Field:      "schedule",
			Value:      spec,
			Message:    err.Error(),
			Suggestion: "Use a 5-field cron expression such as '*/30 * * * *' or --every 30m",
		}
	}
	return nil
}

// Schedule runs job once immediately and then on spec until ctx is done.
// Overlapping runs are skipped.
func Schedule(ctx context.Context, spec string, logger *logging.Logger, job func(context.Context)) error {
	if err := ValidateSchedule(spec); err != nil {
		return err
	}

	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(spec, func() { job(ctx) }); err != nil {
		return fmt.Errorf("scheduling %q: %w", spec, err)
	}

	job(ctx)
	c.Start()
	logger.Debug("Renewal scheduled: %s", spec)

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// cronLogger adapts logging.Logger to cron.Logger.
type cronLogger struct {
	logger *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: %s%s", msg, formatKV(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: %s: %v%s", msg, err, formatKV(keysAndValues))
}

func formatKV(kv []interface{}) string {
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	return b.String()
}
