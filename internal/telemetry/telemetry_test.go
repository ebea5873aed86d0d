package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	tests := []struct {
		name         string
		cfg          Config
		wantRatio    float64
		wantInterval time.Duration
	}{
		{name: "zero", wantRatio: DefaultSampleRatio, wantInterval: DefaultMetricInterval},
		{name: "ratio above one", cfg: Config{SampleRatio: 2}, wantRatio: DefaultSampleRatio, wantInterval: DefaultMetricInterval},
		{name: "explicit", cfg: Config{SampleRatio: 0.25, MetricInterval: time.Minute}, wantRatio: 0.25, wantInterval: time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.applyDefaults()
			require.Equal(t, tt.wantRatio, cfg.SampleRatio)
			require.Equal(t, tt.wantInterval, cfg.MetricInterval)
		})
	}
}

func TestSampler(t *testing.T) {
	require.Contains(t, Config{SampleRatio: 1}.sampler().Description(), "AlwaysOnSampler")
	require.Contains(t, Config{SampleRatio: 0.5}.sampler().Description(), "TraceIDRatioBased{0.5}")
}

func TestGetMetrics(t *testing.T) {
	m := GetMetrics()
	require.NotNil(t, m)
	require.Same(t, m, GetMetrics())
	require.NotNil(t, m.ResolutionsTotal)
	require.NotNil(t, m.LimitChecksTotal)
	require.NotNil(t, m.SessionEventsTotal)
}
