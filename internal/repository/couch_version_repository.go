package repository

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-kivik/kivik/v4"
)

const (
	versionDocID   = "diary:version"
	versionDocType = "diary_version"
)

type versionDoc struct {
	ID      string `json:"_id"`
	Rev     string `json:"_rev,omitempty"`
	DocType string `json:"doc_type"`
	Value   int64  `json:"value"`
}

type couchVersionRepository struct {
	db    *kivik.DB
	retry conflictRetry
}

func NewCouchVersionRepository(client *kivik.Client, dbName string) VersionRepository {
	return newCouchVersionRepository(client.DB(dbName))
}

func newCouchVersionRepository(db *kivik.DB) *couchVersionRepository {
	return &couchVersionRepository{
		db:    db,
		retry: newConflictRetry(maxVersionRetries),
	}
}

func (r *couchVersionRepository) load(ctx context.Context) (*versionDoc, error) {
	doc := &versionDoc{ID: versionDocID, DocType: versionDocType}

	err := r.db.Get(ctx, versionDocID).ScanDoc(doc)
	if err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return &versionDoc{ID: versionDocID, DocType: versionDocType}, nil
		}
		return nil, err
	}

	return doc, nil
}

func (r *couchVersionRepository) Get(ctx context.Context) (int64, error) {
	doc, err := r.load(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read diary version: %w", err)
	}
	return doc.Value, nil
}

// Increment is a compare-and-swap on the counter document's revision,
// so concurrent writers each land exactly one increment.
func (r *couchVersionRepository) Increment(ctx context.Context) (int64, error) {
	var next int64

	err := r.retry.do(ctx, func() error {
		doc, err := r.load(ctx)
		if err != nil {
			return fmt.Errorf("failed to read diary version: %w", err)
		}

		doc.Value++
		if _, err := r.db.Put(ctx, versionDocID, doc); err != nil {
			return err
		}
		next = doc.Value
		return nil
	})

	if err != nil {
		return 0, fmt.Errorf("failed to increment diary version: %w", err)
	}
	return next, nil
}
