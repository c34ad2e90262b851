package batch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int { return &v }

func TestAggregate(t *testing.T) {
	t.Parallel()

	items := []ItemResult{
		{
			URL:            "https://example.com",
			Status:         200,
			Success:        true,
			Content:        "test",
			ResponseTimeMS: 100,
			ContentLength:  intPtr(4),
		},
		{
			URL:            "https://example2.com",
			Status:         404,
			Success:        false,
			Error:          "Not found",
			ResponseTimeMS: 50,
		},
	}

	stats := Aggregate(items, time.Second)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Success)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, int64(75), stats.AvgResponseTimeMS)
	assert.Equal(t, 4, stats.TotalBytes)
	assert.Equal(t, int64(1000), stats.TotalTimeMS)
}

func TestAggregateTruncatesAverage(t *testing.T) {
	t.Parallel()

	items := []ItemResult{
		{ResponseTimeMS: 10},
		{ResponseTimeMS: 10},
		{ResponseTimeMS: 11},
	}
	stats := Aggregate(items, 0)
	// 31 / 3 truncates toward zero.
	assert.Equal(t, int64(10), stats.AvgResponseTimeMS)
}

func TestAggregateEmpty(t *testing.T) {
	t.Parallel()

	stats := Aggregate(nil, 500*time.Millisecond)
	assert.Equal(t, 0, stats.Total)
	assert.Equal(t, int64(0), stats.AvgResponseTimeMS)
	assert.Equal(t, 0, stats.TotalBytes)
	assert.Equal(t, int64(500), stats.TotalTimeMS)
}

func TestAggregateSkipsUnknownContentLength(t *testing.T) {
	t.Parallel()

	items := []ItemResult{
		{Success: true, ContentLength: intPtr(100)},
		{Success: false},
		{Success: true, ContentLength: intPtr(23)},
	}
	stats := Aggregate(items, 0)
	assert.Equal(t, 123, stats.TotalBytes)
}

func TestAggregateIdempotent(t *testing.T) {
	t.Parallel()

	items := []ItemResult{
		{Success: true, ResponseTimeMS: 42, ContentLength: intPtr(7)},
		{Success: false, ResponseTimeMS: 17},
	}
	first := Aggregate(items, 2*time.Second)
	second := Aggregate(items, 2*time.Second)
	assert.Equal(t, first, second)
}
