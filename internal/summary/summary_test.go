package summary

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ttc-bus-delays/busdelay/internal/dataset/datasettest"
	"github.com/ttc-bus-delays/busdelay/internal/model"
)

func TestLabel(t *testing.T) {
	tests := []struct {
		param string
		want  string
	}{
		{"(Intercept)", "Intercept"},
		{"min_gap", "Inter-Bus Gap"},
		{"sigma", "Residual SD (σ)"},
		{"incidentMechanical", "Incident: Mechanical"},
		{"incidentNot Specified", "Incident: Not Specified"},
		{"daySaturday", "Day: Saturday"},
		{"incident", "incident"},
		{"log-posterior", "log-posterior"},
	}

	for _, tc := range tests {
		t.Run(tc.param, func(t *testing.T) {
			assert.Equal(t, tc.want, Label(tc.param))
		})
	}
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 3.0, Median([]float64{1, 3, 7}))
	assert.Equal(t, 5.0, Median([]float64{1, 3, 7, 100}))
	assert.True(t, math.IsNaN(Median(nil)))
}

func TestSummarize_KnownDraws(t *testing.T) {
	fm, err := model.FromSnapshot(model.Snapshot{
		ID:     "known",
		Params: []string{"(Intercept)", "min_gap", "custom_param", "sigma"},
		Draws: [][][]float64{
			{{1, 10, 0, 2}, {2, 10, 0, 2}, {3, 10, 0, 2}},
			{{4, 10, 0, 2}, {5, 10, 0, 2}, {100, 10, 0, 2}},
		},
	})
	require.NoError(t, err)

	s := Summarize(fm)
	assert.Equal(t, "known", s.ModelID)
	require.Len(t, s.Rows, 4)

	// intercept draws 1,2,3,4,5,100: median 3.5, |dev| = 2.5,1.5,.5,.5,1.5,96.5 → MAD 1.5
	icpt, ok := s.Get("(Intercept)")
	require.True(t, ok)
	assert.Equal(t, "Intercept", icpt.Label)
	assert.Equal(t, 3.5, icpt.Median)
	assert.InDelta(t, 1.5*MADScale, icpt.MAD, 1e-12)
	assert.Equal(t, 6, icpt.NumDraws)
	assert.LessOrEqual(t, icpt.Lower95, icpt.Median)
	assert.GreaterOrEqual(t, icpt.Upper95, icpt.Median)

	gap, _ := s.Get("min_gap")
	assert.Equal(t, 10.0, gap.Median)
	assert.Equal(t, 0.0, gap.MAD)

	// unmapped parameters are kept under their raw name
	custom, ok := s.Get("custom_param")
	require.True(t, ok)
	assert.Equal(t, "custom_param", custom.Label)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestSummarize_ReproducibleAcrossFits(t *testing.T) {
	ds := datasettest.Synthetic(500, 9)
	sc := model.SamplerConfig{Chains: 4, Iterations: 400, Warmup: 200, Seed: 987}

	a, err := model.Fit(context.Background(), ds, model.DefaultPriors(), sc)
	require.NoError(t, err)
	b, err := model.Fit(context.Background(), ds, model.DefaultPriors(), sc)
	require.NoError(t, err)

	sa, sb := Summarize(a), Summarize(b)
	require.Len(t, sb.Rows, len(sa.Rows))
	for i := range sa.Rows {
		assert.InDelta(t, sa.Rows[i].Median, sb.Rows[i].Median, 1e-9, sa.Rows[i].Param)
	}
}
