package auth

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vcerrors "github.com/systmms/vaultctl/internal/errors"
	tu "github.com/systmms/vaultctl/tests/testutil"
)

func TestScheduleRunsImmediatelyAndStopsWithContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int32

	done := make(chan error, 1)
	go func() {
		done <- Schedule(ctx, EverySpec(time.Hour), tu.NewTestLogger(t).Logger, func(context.Context) {
			runs.Add(1)
			cancel()
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Schedule did not return after cancellation")
	}
	assert.Equal(t, int32(1), runs.Load())
}

func TestValidateSchedule(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateSchedule("*/30 * * * *"))
	assert.NoError(t, ValidateSchedule(EverySpec(15*time.Minute)))

	err := ValidateSchedule("every half hour")
	var cfgErr vcerrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, vcerrors.ExitEnvironment, vcerrors.ExitCode(err))
}
