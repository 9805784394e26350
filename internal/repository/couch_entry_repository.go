package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"diary-sync-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

const (
	entryDocType = "diary_entry"
	listPageSize = 1000
)

type entryDoc struct {
	ID        string `json:"_id"`
	Rev       string `json:"_rev,omitempty"`
	DocType   string `json:"doc_type"`
	Day       int64  `json:"day"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

type couchEntryRepository struct {
	db    *kivik.DB
	retry conflictRetry
}

func NewCouchEntryRepository(client *kivik.Client, dbName string) EntryRepository {
	return newCouchEntryRepository(client.DB(dbName))
}

func newCouchEntryRepository(db *kivik.DB) *couchEntryRepository {
	return &couchEntryRepository{
		db:    db,
		retry: newConflictRetry(maxConflictRetries),
	}
}

func entryDocID(day int64) string {
	return fmt.Sprintf("diary:%d", day)
}

func entryQuery(skip int) map[string]interface{} {
	return map[string]interface{}{
		"selector": map[string]interface{}{
			"doc_type": entryDocType,
		},
		"limit": listPageSize,
		"skip":  skip,
	}
}

func (r *couchEntryRepository) List(ctx context.Context) ([]*domain.DiaryEntry, error) {
	entries := []*domain.DiaryEntry{}
	for skip := 0; ; skip += listPageSize {
		rows := r.db.Find(ctx, entryQuery(skip))
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to list diary entries: %w", err)
		}

		n := 0
		for rows.Next() {
			n++
			var doc entryDoc
			if err := rows.ScanDoc(&doc); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to decode diary entry: %w", err)
			}
			entries = append(entries, &domain.DiaryEntry{
				Day:       doc.Day,
				Text:      doc.Text,
				Timestamp: doc.Timestamp,
			})
		}
		err := rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to list diary entries: %w", err)
		}

		if n < listPageSize {
			return entries, nil
		}
	}
}

// Upsert writes the day's document over whatever revision is current.
// A revision conflict means another writer got in first; we re-read and
// retry so the latest completed write wins.
func (r *couchEntryRepository) Upsert(ctx context.Context, entry *domain.DiaryEntry) error {
	docID := entryDocID(entry.Day)

	err := r.retry.do(ctx, func() error {
		rev, err := currentRev(ctx, r.db, docID)
		if err != nil {
			return fmt.Errorf("failed to fetch diary entry revision: %w", err)
		}

		doc := entryDoc{
			ID:        docID,
			Rev:       rev,
			DocType:   entryDocType,
			Day:       entry.Day,
			Text:      entry.Text,
			Timestamp: entry.Timestamp,
		}

		_, err = r.db.Put(ctx, docID, doc)
		return err
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrTooManyConflicts):
		return fmt.Errorf("failed to upsert diary entry %d: %w", entry.Day, err)
	default:
		return fmt.Errorf("failed to upsert diary entry: %w", err)
	}
}

func currentRev(ctx context.Context, db *kivik.DB, docID string) (string, error) {
	var existing struct {
		Rev string `json:"_rev"`
	}

	err := db.Get(ctx, docID).ScanDoc(&existing)
	if err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return "", nil
		}
		return "", err
	}

	return existing.Rev, nil
}
