package sink

import (
	"context"

	"livehub/domain/event"
	"livehub/observability"
)

// StatsSink bumps hub counters from published facts.
type StatsSink struct {
	stats *observability.Stats
}

func NewStatsSink(stats *observability.Stats) StatsSink {
	return StatsSink{stats: stats}
}

func (s StatsSink) Consume(_ context.Context, e event.DomainEvent) error {
	switch e.(type) {
	case event.MessagePosted:
		s.stats.IncrMessagesPosted()
	}
	return nil
}
