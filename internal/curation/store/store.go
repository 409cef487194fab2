// Package store persists curation records in PostgreSQL. Writes that touch
// multiple tables run inside a transaction; rejection reasons are stored
// comma-delimited and split back at this boundary.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/curation-tools/corpus-platform/internal/curation"
	"github.com/curation-tools/corpus-platform/internal/events"
	apperrors "github.com/curation-tools/corpus-platform/pkg/errors"
	"github.com/curation-tools/corpus-platform/pkg/postgres"
	"github.com/lib/pq"
)

// Store provides curation persistence on top of a PostgreSQL client.
//
// It requires the curation tables:
//
//	CREATE TABLE approved_items (
//	    external_id       TEXT PRIMARY KEY,
//	    url               TEXT NOT NULL UNIQUE,
//	    title             TEXT NOT NULL,
//	    excerpt           TEXT NOT NULL DEFAULT '',
//	    publisher         TEXT NOT NULL DEFAULT '',
//	    image_url         TEXT NOT NULL DEFAULT '',
//	    language          TEXT NOT NULL DEFAULT '',
//	    topic             TEXT NOT NULL DEFAULT '',
//	    status            TEXT NOT NULL,
//	    source            TEXT NOT NULL,
//	    is_collection     BOOLEAN NOT NULL DEFAULT FALSE,
//	    is_syndicated     BOOLEAN NOT NULL DEFAULT FALSE,
//	    is_time_sensitive BOOLEAN NOT NULL DEFAULT FALSE,
//	    created_at        TIMESTAMPTZ NOT NULL,
//	    created_by        TEXT NOT NULL DEFAULT '',
//	    updated_at        TIMESTAMPTZ NOT NULL,
//	    updated_by        TEXT NOT NULL DEFAULT ''
//	);
//
//	CREATE TABLE approved_item_authors (
//	    approved_item_external_id TEXT NOT NULL
//	        REFERENCES approved_items(external_id) ON DELETE CASCADE,
//	    name       TEXT NOT NULL,
//	    sort_order INT NOT NULL DEFAULT 0
//	);
//
//	CREATE TABLE rejected_items (
//	    external_id TEXT PRIMARY KEY,
//	    url         TEXT NOT NULL,
//	    title       TEXT NOT NULL DEFAULT '',
//	    language    TEXT NOT NULL DEFAULT '',
//	    topic       TEXT NOT NULL DEFAULT '',
//	    reasons     TEXT NOT NULL,
//	    created_at  TIMESTAMPTZ NOT NULL,
//	    created_by  TEXT NOT NULL DEFAULT ''
//	);
//
//	CREATE TABLE scheduled_items (
//	    external_id               TEXT PRIMARY KEY,
//	    approved_item_external_id TEXT NOT NULL
//	        REFERENCES approved_items(external_id) ON DELETE CASCADE,
//	    surface_guid   TEXT NOT NULL,
//	    scheduled_date DATE NOT NULL,
//	    created_at     TIMESTAMPTZ NOT NULL,
//	    created_by     TEXT NOT NULL DEFAULT '',
//	    updated_at     TIMESTAMPTZ NOT NULL,
//	    updated_by     TEXT NOT NULL DEFAULT '',
//	    UNIQUE (approved_item_external_id, surface_guid, scheduled_date)
//	);
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

// New creates a Store.
func New(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "curation-store"),
	}
}

const uniqueViolation = "23505"

// CreateApprovedItem inserts an approved item and its authors. A url already
// present in the corpus returns ErrDuplicateURL.
func (s *Store) CreateApprovedItem(ctx context.Context, item *curation.ApprovedItem) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO approved_items
				(external_id, url, title, excerpt, publisher, image_url, language, topic,
				 status, source, is_collection, is_syndicated, is_time_sensitive,
				 created_at, created_by, updated_at, updated_by)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
			item.ExternalID, item.URL, item.Title, item.Excerpt, item.Publisher,
			item.ImageURL, item.Language, item.Topic, string(item.Status), item.Source,
			item.IsCollection, item.IsSyndicated, item.IsTimeSensitive,
			item.CreatedAt, item.CreatedBy, item.UpdatedAt, item.UpdatedBy,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperrors.New(apperrors.ErrDuplicateURL, 409, item.URL)
			}
			return fmt.Errorf("inserting approved item: %w", err)
		}
		return s.insertAuthors(ctx, tx, item.ExternalID, item.Authors)
	})
}

// GetApprovedItem loads an approved item with its authors.
func (s *Store) GetApprovedItem(ctx context.Context, externalID string) (*curation.ApprovedItem, error) {
	item, err := s.scanApprovedItem(s.db.DB.QueryRowContext(ctx,
		selectApprovedItem+` WHERE external_id = $1`, externalID))
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrItemNotFound, 404, externalID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying approved item: %w", err)
	}
	if err := s.loadAuthors(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// UpdateApprovedItem replaces the mutable fields of an approved item and its
// authors, returning the updated record.
func (s *Store) UpdateApprovedItem(ctx context.Context, item *curation.ApprovedItem) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE approved_items
			 SET title=$2, excerpt=$3, publisher=$4, image_url=$5, language=$6, topic=$7,
			     status=$8, is_collection=$9, is_syndicated=$10, is_time_sensitive=$11,
			     updated_at=$12, updated_by=$13
			 WHERE external_id=$1`,
			item.ExternalID, item.Title, item.Excerpt, item.Publisher, item.ImageURL,
			item.Language, item.Topic, string(item.Status), item.IsCollection,
			item.IsSyndicated, item.IsTimeSensitive, item.UpdatedAt, item.UpdatedBy,
		)
		if err != nil {
			return fmt.Errorf("updating approved item: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperrors.New(apperrors.ErrItemNotFound, 404, item.ExternalID)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM approved_item_authors WHERE approved_item_external_id=$1`,
			item.ExternalID); err != nil {
			return fmt.Errorf("clearing authors: %w", err)
		}
		return s.insertAuthors(ctx, tx, item.ExternalID, item.Authors)
	})
}

// DeleteApprovedItem removes an approved item (authors and schedules cascade)
// and returns the deleted snapshot.
func (s *Store) DeleteApprovedItem(ctx context.Context, externalID string) (*curation.ApprovedItem, error) {
	item, err := s.GetApprovedItem(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.DB.ExecContext(ctx,
		`DELETE FROM approved_items WHERE external_id=$1`, externalID); err != nil {
		return nil, fmt.Errorf("deleting approved item: %w", err)
	}
	return item, nil
}

// CreateRejectedItem inserts a rejected item, storing the reason codes
// comma-delimited.
func (s *Store) CreateRejectedItem(ctx context.Context, item *curation.RejectedItem) error {
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO rejected_items
			(external_id, url, title, language, topic, reasons, created_at, created_by)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		item.ExternalID, item.URL, item.Title, item.Language, item.Topic,
		strings.Join(item.Reasons, ","), item.CreatedAt, item.CreatedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.New(apperrors.ErrDuplicateURL, 409, item.URL)
		}
		return fmt.Errorf("inserting rejected item: %w", err)
	}
	return nil
}

// CreateScheduledItem inserts a schedule row. The same item scheduled twice
// for one surface and date returns ErrDuplicateSchedule.
func (s *Store) CreateScheduledItem(ctx context.Context, rec *curation.ScheduledRecord) error {
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO scheduled_items
			(external_id, approved_item_external_id, surface_guid, scheduled_date,
			 created_at, created_by, updated_at, updated_by)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		rec.ExternalID, rec.ApprovedItemExternalID, rec.SurfaceGUID, rec.ScheduledDate,
		rec.CreatedAt, rec.CreatedBy, rec.UpdatedAt, rec.UpdatedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.New(apperrors.ErrDuplicateSchedule, 409, rec.ApprovedItemExternalID)
		}
		return fmt.Errorf("inserting scheduled item: %w", err)
	}
	return nil
}

// GetScheduledRecord loads one schedule row by external id.
func (s *Store) GetScheduledRecord(ctx context.Context, externalID string) (*curation.ScheduledRecord, error) {
	rec := &curation.ScheduledRecord{}
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT external_id, approved_item_external_id, surface_guid, scheduled_date,
		        created_at, created_by, updated_at, updated_by
		 FROM scheduled_items WHERE external_id=$1`, externalID,
	).Scan(&rec.ExternalID, &rec.ApprovedItemExternalID, &rec.SurfaceGUID, &rec.ScheduledDate,
		&rec.CreatedAt, &rec.CreatedBy, &rec.UpdatedAt, &rec.UpdatedBy)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrScheduleNotFound, 404, externalID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying scheduled item: %w", err)
	}
	return rec, nil
}

// DeleteScheduledItem removes a schedule row and returns the deleted
// snapshot.
func (s *Store) DeleteScheduledItem(ctx context.Context, externalID string) (*curation.ScheduledRecord, error) {
	rec, err := s.GetScheduledRecord(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.DB.ExecContext(ctx,
		`DELETE FROM scheduled_items WHERE external_id=$1`, externalID); err != nil {
		return nil, fmt.Errorf("deleting scheduled item: %w", err)
	}
	return rec, nil
}

// UpdateScheduledDate moves a schedule to a new date.
func (s *Store) UpdateScheduledDate(ctx context.Context, externalID string, date time.Time, updatedAt time.Time, updatedBy string) error {
	res, err := s.db.DB.ExecContext(ctx,
		`UPDATE scheduled_items SET scheduled_date=$2, updated_at=$3, updated_by=$4
		 WHERE external_id=$1`,
		externalID, date, updatedAt, updatedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.New(apperrors.ErrDuplicateSchedule, 409, externalID)
		}
		return fmt.Errorf("rescheduling item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.New(apperrors.ErrScheduleNotFound, 404, externalID)
	}
	return nil
}

// ListScheduledItems returns every schedule for a surface and date, joined
// with its approved item.
func (s *Store) ListScheduledItems(ctx context.Context, surfaceGUID string, date time.Time) ([]curation.ScheduledItem, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT si.external_id, si.approved_item_external_id, si.surface_guid, si.scheduled_date,
		        si.created_at, si.created_by, si.updated_at, si.updated_by,
		        ai.external_id, ai.url, ai.title, ai.excerpt, ai.publisher, ai.image_url,
		        ai.language, ai.topic, ai.status, ai.source, ai.is_collection, ai.is_syndicated,
		        ai.is_time_sensitive, ai.created_at, ai.created_by, ai.updated_at, ai.updated_by
		 FROM scheduled_items si
		 JOIN approved_items ai ON ai.external_id = si.approved_item_external_id
		 WHERE si.surface_guid=$1 AND si.scheduled_date=$2
		 ORDER BY si.created_at`,
		surfaceGUID, date,
	)
	if err != nil {
		return nil, fmt.Errorf("listing scheduled items: %w", err)
	}
	defer rows.Close()

	var out []curation.ScheduledItem
	for rows.Next() {
		var sched curation.ScheduledItem
		var status string
		if err := rows.Scan(
			&sched.ExternalID, &sched.ApprovedItemExternalID, &sched.SurfaceGUID, &sched.ScheduledDate,
			&sched.CreatedAt, &sched.CreatedBy, &sched.UpdatedAt, &sched.UpdatedBy,
			&sched.ApprovedItem.ExternalID, &sched.ApprovedItem.URL, &sched.ApprovedItem.Title,
			&sched.ApprovedItem.Excerpt, &sched.ApprovedItem.Publisher, &sched.ApprovedItem.ImageURL,
			&sched.ApprovedItem.Language, &sched.ApprovedItem.Topic, &status, &sched.ApprovedItem.Source,
			&sched.ApprovedItem.IsCollection, &sched.ApprovedItem.IsSyndicated,
			&sched.ApprovedItem.IsTimeSensitive, &sched.ApprovedItem.CreatedAt,
			&sched.ApprovedItem.CreatedBy, &sched.ApprovedItem.UpdatedAt, &sched.ApprovedItem.UpdatedBy,
		); err != nil {
			return nil, fmt.Errorf("scanning scheduled item: %w", err)
		}
		sched.ApprovedItem.Status = events.Status(status)
		out = append(out, sched)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scheduled items: %w", err)
	}
	for i := range out {
		if err := s.loadAuthors(ctx, &out[i].ApprovedItem); err != nil {
			return nil, err
		}
	}
	return out, nil
}

const selectApprovedItem = `SELECT external_id, url, title, excerpt, publisher, image_url,
	language, topic, status, source, is_collection, is_syndicated, is_time_sensitive,
	created_at, created_by, updated_at, updated_by
	FROM approved_items`

func (s *Store) scanApprovedItem(row *sql.Row) (*curation.ApprovedItem, error) {
	item := &curation.ApprovedItem{}
	var status string
	err := row.Scan(
		&item.ExternalID, &item.URL, &item.Title, &item.Excerpt, &item.Publisher,
		&item.ImageURL, &item.Language, &item.Topic, &status, &item.Source,
		&item.IsCollection, &item.IsSyndicated, &item.IsTimeSensitive,
		&item.CreatedAt, &item.CreatedBy, &item.UpdatedAt, &item.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	item.Status = events.Status(status)
	return item, nil
}

func (s *Store) insertAuthors(ctx context.Context, tx *sql.Tx, externalID string, authors []events.Author) error {
	for _, author := range authors {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO approved_item_authors (approved_item_external_id, name, sort_order)
			 VALUES ($1,$2,$3)`,
			externalID, author.Name, author.SortOrder,
		); err != nil {
			return fmt.Errorf("inserting author %q: %w", author.Name, err)
		}
	}
	return nil
}

func (s *Store) loadAuthors(ctx context.Context, item *curation.ApprovedItem) error {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT name, sort_order FROM approved_item_authors
		 WHERE approved_item_external_id=$1 ORDER BY sort_order`,
		item.ExternalID,
	)
	if err != nil {
		return fmt.Errorf("querying authors: %w", err)
	}
	defer rows.Close()
	item.Authors = nil
	for rows.Next() {
		var a events.Author
		if err := rows.Scan(&a.Name, &a.SortOrder); err != nil {
			return fmt.Errorf("scanning author: %w", err)
		}
		item.Authors = append(item.Authors, a)
	}
	return rows.Err()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}
