// Package search maintains a full-text index over room messages. The
// index is a side channel off the durable write path: indexing failures
// are logged by callers and never affect message delivery.
package search

import (
	"context"
	"log/slog"
	"strconv"

	"chat-hub/domain"

	"github.com/blugelabs/bluge"
)

// Index wraps a bluge writer holding one document per room message.
type Index struct {
	writer *bluge.Writer
	log    *slog.Logger
}

// Open creates or reopens the on-disk index.
func Open(path string, log *slog.Logger) (*Index, error) {
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(path))
	if err != nil {
		return nil, err
	}
	return &Index{writer: writer, log: log}, nil
}

// OpenInMemory backs the index with memory only; used by tests.
func OpenInMemory(log *slog.Logger) (*Index, error) {
	writer, err := bluge.OpenWriter(bluge.InMemoryOnlyConfig())
	if err != nil {
		return nil, err
	}
	return &Index{writer: writer, log: log}, nil
}

func (i *Index) Close() error {
	return i.writer.Close()
}

// Index adds one room message. Direct messages are private and never
// indexed; callers route only room traffic here.
func (i *Index) Index(message domain.Message) error {
	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewTextField("body", message.Body).StoreValue()).
		AddField(bluge.NewKeywordField("room", message.Room).StoreValue()).
		AddField(bluge.NewKeywordField("sender", message.Sender).StoreValue()).
		AddField(bluge.NewStoredOnlyField("at", []byte(strconv.FormatFloat(domain.UnixSeconds(message.At), 'f', -1, 64))))
	return i.writer.Update(doc.ID(), doc)
}

// Query narrows a search: Terms match against message bodies, Room (if
// set) restricts to one room.
type Query struct {
	Terms string
	Room  string
	Limit int
}

// Hit is one matching message.
type Hit struct {
	Sender    string  `json:"sender"`
	Room      string  `json:"room"`
	Message   string  `json:"message"`
	Timestamp float64 `json:"timestamp"`
}

// Search runs the query against a fresh snapshot reader and returns the
// best matches by relevance.
func (i *Index) Search(ctx context.Context, q Query) ([]Hit, error) {
	if q.Limit <= 0 {
		q.Limit = 10
	}

	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			i.log.Debug("Failed to close index reader", "error", err)
		}
	}()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(q.Terms).SetField("body"))
	if q.Room != "" {
		query.AddMust(bluge.NewTermQuery(q.Room).SetField("room"))
	}

	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(q.Limit, query))
	if err != nil {
		return nil, err
	}

	var hits []Hit
	for {
		match, err := iterator.Next()
		if err != nil {
			return nil, err
		}
		if match == nil {
			break
		}

		var hit Hit
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "body":
				hit.Message = string(value)
			case "room":
				hit.Room = string(value)
			case "sender":
				hit.Sender = string(value)
			case "at":
				hit.Timestamp, _ = strconv.ParseFloat(string(value), 64)
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
