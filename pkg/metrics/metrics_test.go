package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordHelpers(t *testing.T) {
	before := testutil.ToFloat64(ResolutionsTotal.WithLabelValues("accept", "direct"))
	RecordResolution("accept", "direct")
	assert.Equal(t, before+1, testutil.ToFloat64(ResolutionsTotal.WithLabelValues("accept", "direct")))

	hits := testutil.ToFloat64(CacheLookupsTotal.WithLabelValues("hit"))
	misses := testutil.ToFloat64(CacheLookupsTotal.WithLabelValues("miss"))
	RecordCacheLookup(true)
	RecordCacheLookup(false)
	RecordCacheLookup(false)
	assert.Equal(t, hits+1, testutil.ToFloat64(CacheLookupsTotal.WithLabelValues("hit")))
	assert.Equal(t, misses+2, testutil.ToFloat64(CacheLookupsTotal.WithLabelValues("miss")))

	vetoes := testutil.ToFloat64(VetoesTotal.WithLabelValues("merge", "color"))
	RecordVeto("merge", "color")
	assert.Equal(t, vetoes+1, testutil.ToFloat64(VetoesTotal.WithLabelValues("merge", "color")))
}
