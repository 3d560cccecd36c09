//go:generate go run go.uber.org/mock/mockgen -source=search.go -destination=../mocks/mock_search_repository.go -package=mocks
package repositories

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"

	"livehub/domain"
)

// ISearchRepository is the full-text side of the message store. Badger owns
// history and ordering; Bluge only answers "which messages mention X".
type ISearchRepository interface {
	Index(message domain.Message) error
	Search(ctx context.Context, roomID, query string, limit int) ([]SearchHit, uint64, error)
}

type SearchHit struct {
	MessageID  uuid.UUID
	RoomID     string
	SenderName string
	Body       string
	At         time.Time
}

type SearchRepository struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewSearchRepository(writer *bluge.Writer, log *slog.Logger) SearchRepository {
	return SearchRepository{writer: writer, log: log}
}

// Index makes one message findable. Update is used instead of Insert so a
// redelivered event never duplicates a document.
func (s SearchRepository) Index(message domain.Message) error {
	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewKeywordField("room_id", message.RoomID).StoreValue()).
		AddField(bluge.NewTextField("body", message.Body).StoreValue()).
		AddField(bluge.NewTextField("sender_name", message.SenderName).StoreValue()).
		AddField(bluge.NewKeywordField("at", strconv.FormatInt(message.CreatedAt.UnixNano(), 10)).StoreValue())
	return s.writer.Update(doc.ID(), doc)
}

// Search matches the query against message bodies inside one room.
// The room filter is a must-clause so rooms stay isolated from each other.
func (s SearchRepository) Search(ctx context.Context, roomID, query string, limit int) ([]SearchHit, uint64, error) {
	reader, err := s.writer.Reader()
	if err != nil {
		return nil, 0, err
	}
	defer reader.Close()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(roomID).SetField("room_id")).
		AddMust(bluge.NewMatchQuery(query).SetField("body"))

	request := bluge.NewTopNSearch(limit, q).WithStandardAggregations()
	dmi, err := reader.Search(ctx, request)
	if err != nil {
		return nil, 0, err
	}

	var hits []SearchHit
	for {
		match, err := dmi.Next()
		if err != nil {
			return nil, 0, err
		}
		if match == nil {
			break
		}

		var hit SearchHit
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				if id, perr := uuid.Parse(string(value)); perr == nil {
					hit.MessageID = id
				}
			case "room_id":
				hit.RoomID = string(value)
			case "body":
				hit.Body = string(value)
			case "sender_name":
				hit.SenderName = string(value)
			case "at":
				if nanos, perr := strconv.ParseInt(string(value), 10, 64); perr == nil {
					hit.At = time.Unix(0, nanos).UTC()
				}
			}
			return true
		})
		if err != nil {
			return nil, 0, err
		}
		hits = append(hits, hit)
	}

	return hits, dmi.Aggregations().Count(), nil
}
