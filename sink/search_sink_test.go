package sink_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"livehub/domain"
	"livehub/domain/event"
	"livehub/repositories"
	"livehub/sink"
)

func TestSearchSink_Indexes_Posted_Messages(t *testing.T) {
	req := require.New(t)
	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	req.NoError(err)
	defer blugeWriter.Close()

	// Silencing logs for clean test output
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repository := repositories.NewSearchRepository(blugeWriter, logger)
	s := sink.NewSearchSink(repository, logger)
	ctx := context.Background()

	message := domain.Message{
		ID:         uuid.New(),
		RoomID:     "ops",
		SenderID:   "alice",
		SenderName: "Alice",
		Body:       "the incident postmortem is ready",
		Kind:       domain.KindText,
		CreatedAt:  time.Now().UTC(),
	}
	req.NoError(s.Consume(ctx, event.MessagePosted{Message: message}))

	hits, total, err := repository.Search(ctx, "ops", "postmortem", 10)
	req.NoError(err)
	req.Equal(uint64(1), total)
	req.Len(hits, 1)
	req.Equal(message.ID, hits[0].MessageID)
}

func TestSearchSink_Ignores_Other_Events(t *testing.T) {
	req := require.New(t)
	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	req.NoError(err)
	defer blugeWriter.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := sink.NewSearchSink(repositories.NewSearchRepository(blugeWriter, logger), logger)

	req.NoError(s.Consume(context.Background(), event.PresenceChanged{UserID: "alice", Online: true}))
}
