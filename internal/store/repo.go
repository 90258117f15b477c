package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/starford/eatsync/internal/models"
)

// ListArticles returns every article, newest first.
func (db *DB) ListArticles(ctx context.Context) ([]models.ArticleRecord, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, title, content, url, timestamp FROM articles ORDER BY timestamp DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list articles: %w", err)
	}
	defer rows.Close()

	var out []models.ArticleRecord
	for rows.Next() {
		var r models.ArticleRecord
		if err := rows.Scan(&r.ID, &r.Title, &r.Content, &r.URL, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("store: scan article: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListHealthRecords returns every health record, oldest first.
func (db *DB) ListHealthRecords(ctx context.Context) ([]models.HealthRecord, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, timestamp, type, value1, value2 FROM health_data ORDER BY timestamp ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: list health records: %w", err)
	}
	defer rows.Close()

	var out []models.HealthRecord
	for rows.Next() {
		var (
			r    models.HealthRecord
			kind string
			v2   sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &r.Timestamp, &kind, &r.Value1, &v2); err != nil {
			return nil, fmt.Errorf("store: scan health record: %w", err)
		}
		r.Kind = models.HealthKind(kind)
		if v2.Valid {
			v := v2.Float64
			r.Value2 = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListEvents returns every event, oldest first.
func (db *DB) ListEvents(ctx context.Context) ([]models.EventRecord, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, type, timestamp, image_path FROM events ORDER BY timestamp ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: list events: %w", err)
	}
	defer rows.Close()

	var out []models.EventRecord
	for rows.Next() {
		var (
			r     models.EventRecord
			photo sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Category, &r.Timestamp, &photo); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		r.PhotoPath = photo.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// ClearArticles deletes every article.
func (db *DB) ClearArticles(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM articles`); err != nil {
		return fmt.Errorf("store: clear articles: %w", err)
	}
	return nil
}

// ClearHealthRecords deletes every health record.
func (db *DB) ClearHealthRecords(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM health_data`); err != nil {
		return fmt.Errorf("store: clear health records: %w", err)
	}
	return nil
}

// ClearEvents deletes every event.
func (db *DB) ClearEvents(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM events`); err != nil {
		return fmt.Errorf("store: clear events: %w", err)
	}
	return nil
}

// InsertArticle stores r. An ID of 0 lets SQLite assign one.
func (db *DB) InsertArticle(ctx context.Context, r models.ArticleRecord) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO articles (id, title, content, url, timestamp) VALUES (NULLIF(?, 0), ?, ?, ?, ?)`,
		r.ID, r.Title, r.Content, r.URL, r.Timestamp)
	if err != nil {
		return fmt.Errorf("store: insert article: %w", err)
	}
	return nil
}

// InsertHealthRecord stores r. An ID of 0 lets SQLite assign one.
func (db *DB) InsertHealthRecord(ctx context.Context, r models.HealthRecord) error {
	var v2 sql.NullFloat64
	if r.Value2 != nil {
		v2 = sql.NullFloat64{Float64: *r.Value2, Valid: true}
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO health_data (id, timestamp, type, value1, value2) VALUES (NULLIF(?, 0), ?, ?, ?, ?)`,
		r.ID, r.Timestamp, string(r.Kind), r.Value1, v2)
	if err != nil {
		return fmt.Errorf("store: insert health record: %w", err)
	}
	return nil
}

// InsertEvent stores r. An ID of 0 lets SQLite assign one; an empty photo
// path is stored as NULL.
func (db *DB) InsertEvent(ctx context.Context, r models.EventRecord) error {
	photo := sql.NullString{String: r.PhotoPath, Valid: r.PhotoPath != ""}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO events (id, type, timestamp, image_path) VALUES (NULLIF(?, 0), ?, ?, ?)`,
		r.ID, r.Category, r.Timestamp, photo)
	if err != nil {
		return fmt.Errorf("store: insert event: %w", err)
	}
	return nil
}
