package pagination

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_FetchCounters(t *testing.T) {
	pagesBefore := testutil.ToFloat64(pagesTotal)
	recordsBefore := testutil.ToFloat64(recordsTotal)
	successBefore := testutil.ToFloat64(fetchesTotal.WithLabelValues(statusSuccess))
	failedBefore := testutil.ToFloat64(fetchesTotal.WithLabelValues(statusFailed))

	cfg := DefaultConfig()
	cfg.PageSize = 2
	cfg.MaxRetries = 1

	f, err := NewFetcher[int](cfg, testOptions(newTestClock())...)
	require.NoError(t, err)

	ok := &callRecorder{responses: []func(Params) (Page[int], error){pageOf(1, 2), pageOf(3)}}
	require.True(t, f.FetchAll(context.Background(), ok.fetch, nil).Success)

	broken := &callRecorder{responses: []func(Params) (Page[int], error){failWith(errors.New("boom"))}}
	require.False(t, f.FetchAll(context.Background(), broken.fetch, nil).Success)

	assert.Equal(t, 2.0, testutil.ToFloat64(pagesTotal)-pagesBefore)
	assert.Equal(t, 3.0, testutil.ToFloat64(recordsTotal)-recordsBefore)
	assert.Equal(t, 1.0, testutil.ToFloat64(fetchesTotal.WithLabelValues(statusSuccess))-successBefore)
	assert.Equal(t, 1.0, testutil.ToFloat64(fetchesTotal.WithLabelValues(statusFailed))-failedBefore)
	assert.Equal(t, 0.0, testutil.ToFloat64(partitionsInFlight))
}
