package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_CountsOutcomes(t *testing.T) {
	r := NewRecorder()

	r.ObserveFit(nil)
	r.ObserveFit(nil)
	r.ObserveFit(errors.New("singular"))
	r.ObserveRound(5*time.Millisecond, nil)
	r.SetSignificant(12)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.Fits(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Fits(OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Rounds(OutcomeOK)))
	assert.Equal(t, 12.0, testutil.ToFloat64(r.Significant()))

	families, err := r.Registry().Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "metabostat_permutation_round_seconds")
}

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveFit(nil)
		r.ObserveRound(time.Second, errors.New("x"))
		r.SetSignificant(3)
		assert.Nil(t, r.Registry())
	})
}
