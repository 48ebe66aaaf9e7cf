package settle

import "time"

// Sample is one value produced by a Supplier, stamped with its 1-based
// attempt number and the time it was taken.
type Sample[T any] struct {
	Value   T
	Attempt int
	Time    time.Time

	// Err is set only when the poller retries on supplier errors and this
	// attempt failed. Conditions are not evaluated on such samples.
	Err error
}

func appendRecent[T any](samples []Sample[T], s Sample[T], max int) []Sample[T] {
	samples = append(samples, s)
	if len(samples) > max {
		samples = samples[len(samples)-max:]
	}
	return samples
}
