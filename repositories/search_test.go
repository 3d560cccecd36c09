package repositories

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/stretchr/testify/require"
)

func Test_Search_Finds_By_Body(t *testing.T) {
	req := require.New(t)
	blugeCfg := bluge.DefaultConfig(t.TempDir())
	blugeWriter, err := bluge.OpenWriter(blugeCfg)
	req.NoError(err)
	defer blugeWriter.Close()

	repository := NewSearchRepository(blugeWriter, slog.Default())
	ctx := context.Background()
	at := time.Now().UTC()

	// Given: two indexed messages
	deploy := newTestMessage("ops", "alice", "the deploy pipeline is broken again", at)
	lunch := newTestMessage("ops", "bob", "lunch at the usual place", at.Add(time.Minute))
	req.NoError(repository.Index(deploy))
	req.NoError(repository.Index(lunch))

	// When: searching for "deploy"
	hits, total, err := repository.Search(ctx, "ops", "deploy", 10)

	// Then: only the matching message comes back, stored fields intact
	req.NoError(err)
	req.Equal(uint64(1), total)
	req.Len(hits, 1)
	req.Equal(deploy.ID, hits[0].MessageID)
	req.Equal("ops", hits[0].RoomID)
	req.Equal("alice", hits[0].SenderName)
	req.Contains(hits[0].Body, "pipeline")
}

func Test_Search_Is_Case_Insensitive(t *testing.T) {
	req := require.New(t)
	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	req.NoError(err)
	defer blugeWriter.Close()

	repository := NewSearchRepository(blugeWriter, slog.Default())
	ctx := context.Background()

	req.NoError(repository.Index(newTestMessage("ops", "alice", "Kubernetes rollout done", time.Now())))

	for _, query := range []string{"kubernetes", "KUBERNETES", "Kubernetes"} {
		hits, total, err := repository.Search(ctx, "ops", query, 10)
		req.NoError(err, "query: %s", query)
		req.Equal(uint64(1), total, "query: %s", query)
		req.Len(hits, 1, "query: %s", query)
	}
}

func Test_Search_Isolates_Rooms(t *testing.T) {
	req := require.New(t)
	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	req.NoError(err)
	defer blugeWriter.Close()

	repository := NewSearchRepository(blugeWriter, slog.Default())
	ctx := context.Background()
	at := time.Now().UTC()

	req.NoError(repository.Index(newTestMessage("room-a", "alice", "secret project alpha", at)))
	req.NoError(repository.Index(newTestMessage("room-b", "bob", "secret project beta", at)))

	hits, total, err := repository.Search(ctx, "room-a", "secret", 10)
	req.NoError(err)
	req.Equal(uint64(1), total)
	req.Len(hits, 1)
	req.Contains(hits[0].Body, "alpha")
}

func Test_Search_Reindex_Does_Not_Duplicate(t *testing.T) {
	req := require.New(t)
	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	req.NoError(err)
	defer blugeWriter.Close()

	repository := NewSearchRepository(blugeWriter, slog.Default())
	ctx := context.Background()

	message := newTestMessage("ops", "alice", "duplicate delivery check", time.Now())
	req.NoError(repository.Index(message))
	req.NoError(repository.Index(message))

	hits, total, err := repository.Search(ctx, "ops", "duplicate", 10)
	req.NoError(err)
	req.Equal(uint64(1), total)
	req.Len(hits, 1)
}

func Test_Search_No_Match_Is_Empty(t *testing.T) {
	req := require.New(t)
	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	req.NoError(err)
	defer blugeWriter.Close()

	repository := NewSearchRepository(blugeWriter, slog.Default())

	hits, total, err := repository.Search(context.Background(), "ops", "nonexistent", 10)
	req.NoError(err)
	req.Equal(uint64(0), total)
	req.Empty(hits)
}
