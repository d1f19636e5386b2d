package utils

import (
	"slices"

	"github.com/nats-io/nats.go"
)

// StreamConfigEqual reports whether the managed fields of two stream configs match.
// Duplicates matters because job publishes rely on the dedup window.
func StreamConfigEqual(a, b nats.StreamConfig) bool {
	return a.Name == b.Name &&
		a.Retention == b.Retention &&
		a.MaxAge == b.MaxAge &&
		a.Storage == b.Storage &&
		a.Duplicates == b.Duplicates &&
		slices.Equal(a.Subjects, b.Subjects)
}

// ConsumerConfigEqual reports whether the managed fields of two pull consumer configs match
func ConsumerConfigEqual(a, b nats.ConsumerConfig) bool {
	return a.Durable == b.Durable &&
		a.AckPolicy == b.AckPolicy &&
		a.FilterSubject == b.FilterSubject &&
		a.MaxDeliver == b.MaxDeliver &&
		a.AckWait == b.AckWait &&
		a.MaxAckPending == b.MaxAckPending
}
