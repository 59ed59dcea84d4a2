package runstats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ethpandaops/releasekpi/pkg/artifact"
)

func TestNormalize_ExecutedReconciliation(t *testing.T) {
	tests := []struct {
		name     string
		counters artifact.Counters
		want     int64
	}{
		{
			name: "status sum below total-untested is kept",
			counters: artifact.Counters{
				Total: 100, Untested: 20, Passed: 50, Failed: 10,
			},
			want: 60,
		},
		{
			name:     "no statuses falls back to total-untested",
			counters: artifact.Counters{Total: 40, Untested: 10},
			want:     30,
		},
		{
			name: "over-counted statuses clamped to total-untested",
			counters: artifact.Counters{
				Total: 50, Untested: 10, Passed: 30, Failed: 20, Retest: 5,
			},
			want: 40,
		},
		{
			name: "zero total uses status sum",
			counters: artifact.Counters{
				Passed: 3, Failed: 2, Blocked: 1, Skipped: 1, Retest: 1,
			},
			want: 8,
		},
		{
			name: "everything untested keeps status sum",
			counters: artifact.Counters{
				Total: 10, Untested: 10, Passed: 2,
			},
			want: 2,
		},
		{
			name: "untested above total gives zero diff",
			counters: artifact.Counters{
				Total: 10, Untested: 25,
			},
			want: 0,
		},
		{
			name: "negative untested treated as zero",
			counters: artifact.Counters{
				Total: 10, Untested: -5, Passed: 12,
			},
			want: 10,
		},
		{
			name:     "negative total uses status sum",
			counters: artifact.Counters{Total: -1, Passed: 4},
			want:     4,
		},
		{
			name:     "all zero",
			counters: artifact.Counters{},
			want:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.counters)
			assert.Equal(t, tt.want, got.ExecutedCases)
		})
	}
}

func TestNormalize_ClampsNegatives(t *testing.T) {
	got := Normalize(artifact.Counters{
		Total:      -10,
		Untested:   -1,
		Passed:     -2,
		Failed:     5,
		Blocked:    -3,
		Skipped:    -4,
		Retest:     -5,
		Invalid:    -6,
		InProgress: -7,
	})

	assert.Equal(t, Stats{
		Failed:        5,
		ExecutedCases: 5,
	}, got)
}

func TestNormalize_CopiesCounters(t *testing.T) {
	got := Normalize(artifact.Counters{
		Total: 100, Untested: 20, Passed: 50, Failed: 10,
		Invalid: 3, InProgress: 2,
	})

	assert.Equal(t, int64(100), got.TotalCases)
	assert.Equal(t, int64(20), got.UntestedCases)
	assert.Equal(t, int64(60), got.SumStatuses())
	assert.Equal(t, int64(3), got.Invalid)
	assert.Equal(t, int64(2), got.InProgress)
}

func TestNormalizeRuns(t *testing.T) {
	runs := []artifact.Run{
		{Title: "a", Counters: artifact.Counters{Total: 100, Untested: 20, Passed: 50, Failed: 10}},
		{Title: "b", Counters: artifact.Counters{Total: 50, Untested: 10, Passed: 30, Failed: 20, Retest: 5}},
		{Title: "c"},
	}

	got := NormalizeRuns(runs)

	assert.Equal(t, int64(150), got.TotalCases)
	assert.Equal(t, int64(100), got.ExecutedCases)
	assert.Equal(t, int64(80), got.Passed)
	assert.Equal(t, int64(30), got.Failed)
	assert.Equal(t, int64(5), got.Retest)
	assert.Equal(t, Stats{}, NormalizeRuns(nil))
}
