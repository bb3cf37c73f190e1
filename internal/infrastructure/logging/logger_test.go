package logging

import (
	"testing"
	"time"

	"github.com/nerrad567/cync-lan-core/internal/infrastructure/config"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsToJSON(t *testing.T) {
	l := New(config.LoggingConfig{Format: "json"})
	require.NotNil(t, l.Logger)
}

func TestNewHumanFormat(t *testing.T) {
	l := New(config.LoggingConfig{Format: "human"})
	require.NotNil(t, l.Logger)
}

func TestNewBothFormat(t *testing.T) {
	l := New(config.LoggingConfig{Format: "both"})
	require.NotNil(t, l.Logger)
}

func TestSlowNoOpBelowThreshold(t *testing.T) {
	l := New(config.LoggingConfig{SlowThresholdMS: 100})
	l.Slow("test-op", 10*time.Millisecond)
}

func TestSlowThresholdZeroDisabled(t *testing.T) {
	l := New(config.LoggingConfig{SlowThresholdMS: 0})
	l.Slow("test-op", time.Hour)
}

func TestWithPreservesThreshold(t *testing.T) {
	l := New(config.LoggingConfig{SlowThresholdMS: 50})
	child := l.With("component", "test")
	require.Equal(t, l.slowThreshold, child.slowThreshold)
}
