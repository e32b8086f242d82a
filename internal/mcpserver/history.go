package mcpserver

import (
	"unshub/internal/api"
)

// Downsample folds a point series into at most maxPoints buckets using the
// requested aggregation. Buckets are index-based over the (already
// time-ordered) series; the numeric aggregations skip non-numeric values,
// and a bucket with no numeric value yields its last point.
func Downsample(points []api.DataPoint, maxPoints int, agg api.AggregationKind) []api.DataPoint {
	if maxPoints <= 0 || len(points) <= maxPoints {
		return points
	}

	out := make([]api.DataPoint, 0, maxPoints)
	bucketSize := float64(len(points)) / float64(maxPoints)

	for b := 0; b < maxPoints; b++ {
		start := int(float64(b) * bucketSize)
		end := int(float64(b+1) * bucketSize)
		if end > len(points) {
			end = len(points)
		}
		if start >= end {
			continue
		}
		out = append(out, aggregateBucket(points[start:end], agg))
	}
	return out
}

func aggregateBucket(bucket []api.DataPoint, agg api.AggregationKind) api.DataPoint {
	switch agg {
	case api.AggregateFirst:
		return bucket[0]
	case api.AggregateLast, api.AggregateNone:
		return bucket[len(bucket)-1]
	}

	// Numeric aggregations. Non-numeric buckets degrade to last.
	values := make([]float64, 0, len(bucket))
	for _, dp := range bucket {
		if f, ok := numeric(dp.Value); ok {
			values = append(values, f)
		}
	}
	if len(values) == 0 {
		return bucket[len(bucket)-1]
	}

	// The representative point keeps the bucket-end timestamp and
	// provenance.
	result := bucket[len(bucket)-1]
	switch agg {
	case api.AggregateAvg:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		result.Value = sum / float64(len(values))
	case api.AggregateMin:
		min := values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		result.Value = min
	case api.AggregateMax:
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		result.Value = max
	}
	return result
}

func numeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}
