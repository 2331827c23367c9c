package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("CALENDAR_TIMEZONE", "UTC")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "deadline-engine", cfg.App.Name)
	assert.Equal(t, time.Minute, cfg.Scheduler.EscalationInterval)
	assert.Equal(t, 10, cfg.Scheduler.AutoCloseAfterDays)
	assert.Equal(t, 60, cfg.Calendar.AtRiskMinutes)
	assert.Empty(t, cfg.Postgres.DSN)
	assert.Equal(t, 24*time.Hour, cfg.Scheduler.ReminderEvery)
	assert.Equal(t, "default-medium", cfg.SLA.DefaultByPriority["MEDIUM"])
}

func TestLoad_ParsesDurations(t *testing.T) {
	t.Setenv("CALENDAR_TIMEZONE", "UTC")
	t.Setenv("SCHEDULER_EXPIRY_INTERVAL", "90s")
	t.Setenv("SCHEDULER_CONCURRENCY", "8")
	t.Setenv("SLA_DEFAULT_URGENT", "sla-p1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sla-p1", cfg.SLA.DefaultByPriority["URGENT"])
	assert.Equal(t, 90*time.Second, cfg.Scheduler.ExpiryInterval)
	assert.Equal(t, 8, cfg.Scheduler.Concurrency)
}

func TestValidate_RejectsBadSettings(t *testing.T) {
	t.Setenv("CALENDAR_TIMEZONE", "Mars/Olympus_Mons")
	t.Setenv("SCHEDULER_CONCURRENCY", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CALENDAR_TIMEZONE")
	assert.Contains(t, err.Error(), "SCHEDULER_CONCURRENCY")
}

func TestValidate_RejectsNonPositiveIntervals(t *testing.T) {
	t.Setenv("CALENDAR_TIMEZONE", "UTC")
	t.Setenv("SCHEDULER_OUTBOX_INTERVAL", "-1s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCHEDULER_OUTBOX_INTERVAL")
}
