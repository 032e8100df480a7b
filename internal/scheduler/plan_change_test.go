package scheduler

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billing-service/internal/config"
)

type stubApplier struct {
	calls   atomic.Int32
	applied int
	err     error
}

func (s *stubApplier) ApplyScheduledChanges(context.Context) (int, error) {
	s.calls.Add(1)
	return s.applied, s.err
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestNormalizeSchedule(t *testing.T) {
	assert.Equal(t, defaultPlanChangeSchedule, normalizeSchedule(""))
	assert.Equal(t, "0 */5 * * * *", normalizeSchedule("*/5 * * * *"))
	assert.Equal(t, "30 0 * * * *", normalizeSchedule("30 0 * * * *"))
}

func TestRunOnce(t *testing.T) {
	applier := &stubApplier{applied: 3}
	s := NewPlanChangeScheduler(applier, config.SchedulerConfig{Enabled: true}, quietLogger())

	assert.Equal(t, 3, s.RunOnce(context.Background()))
	assert.EqualValues(t, 1, applier.calls.Load())

	applier.err = errors.New("database unavailable")
	applier.applied = 1
	assert.Equal(t, 1, s.RunOnce(context.Background()), "partial progress is still reported")
}

func TestStartStop(t *testing.T) {
	s := NewPlanChangeScheduler(&stubApplier{}, config.SchedulerConfig{Enabled: true, PlanChangeSchedule: "*/10 * * * *"}, quietLogger())

	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	require.NoError(t, s.Start(), "starting twice is a no-op")

	s.Stop()
	assert.False(t, s.IsRunning())
	s.Stop()
}

func TestStart_Disabled(t *testing.T) {
	s := NewPlanChangeScheduler(&stubApplier{}, config.SchedulerConfig{Enabled: false}, quietLogger())
	require.NoError(t, s.Start())
	assert.False(t, s.IsRunning())
}

func TestStart_InvalidSchedule(t *testing.T) {
	s := NewPlanChangeScheduler(&stubApplier{}, config.SchedulerConfig{Enabled: true, PlanChangeSchedule: "every now and then"}, quietLogger())
	assert.Error(t, s.Start())
	assert.False(t, s.IsRunning())
}
