package batch

import "time"

// Aggregate derives Stats from a completed result set. It is a pure
// function: calling it repeatedly on the same inputs yields identical
// output.
func Aggregate(items []ItemResult, totalElapsed time.Duration) Stats {
	total := len(items)
	success := 0
	var latencySum int64
	totalBytes := 0
	for _, item := range items {
		if item.Success {
			success++
		}
		latencySum += item.ResponseTimeMS
		if item.ContentLength != nil {
			totalBytes += *item.ContentLength
		}
	}

	var avg int64
	if total > 0 {
		avg = latencySum / int64(total)
	}

	return Stats{
		Total:             total,
		Success:           success,
		Failed:            total - success,
		AvgResponseTimeMS: avg,
		TotalBytes:        totalBytes,
		TotalTimeMS:       totalElapsed.Milliseconds(),
	}
}
