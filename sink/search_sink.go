// Package sink holds the event consumers attached to the bus. Sinks run on
// the bus worker goroutine, off the message write path.
package sink

import (
	"context"
	"fmt"
	"log/slog"

	"livehub/domain/event"
	"livehub/repositories"
)

// SearchSink feeds posted messages into the full-text index. Indexing is
// deliberately asynchronous: a search lagging a few events behind is fine,
// a message append waiting on the index is not.
type SearchSink struct {
	repository repositories.ISearchRepository
	log        *slog.Logger
}

func NewSearchSink(repository repositories.ISearchRepository, log *slog.Logger) SearchSink {
	return SearchSink{repository: repository, log: log}
}

func (s SearchSink) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessagePosted:
		return s.repository.Index(evt.Message)
	default:
		s.log.Debug(fmt.Sprintf("Not implemented event : %v", evt))
		return nil
	}
}
