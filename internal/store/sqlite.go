package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"

	"github.com/billy3321/ivod-engine/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS ivod_transcripts (
	ivod_id INTEGER PRIMARY KEY,
	ivod_url TEXT,
	date TEXT NOT NULL,
	meeting_code TEXT,
	meeting_code_str TEXT,
	category TEXT,
	video_type TEXT,
	video_start TEXT,
	video_end TEXT,
	video_length TEXT,
	video_url TEXT,
	title TEXT,
	speaker_name TEXT,
	meeting_time TEXT NOT NULL,
	meeting_name TEXT,
	committee_names TEXT,
	ai_transcript TEXT,
	ai_status TEXT NOT NULL DEFAULT 'pending',
	ai_retries INTEGER NOT NULL DEFAULT 0,
	ly_transcript TEXT,
	ly_status TEXT NOT NULL DEFAULT 'pending',
	ly_retries INTEGER NOT NULL DEFAULT 0,
	last_updated TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS ivod_transcripts_date_idx ON ivod_transcripts (date, ivod_id);
CREATE INDEX IF NOT EXISTS ivod_transcripts_last_updated_idx ON ivod_transcripts (last_updated);
`

// SQLiteStore is the SQLite Store adapter: every temporal column and
// committee_names is stored as serialized text, since SQLite has no
// native array, JSON, or timezone-aware timestamp type.
type SQLiteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

func OpenSQLite(ctx context.Context, path string, log zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: one writer at a time
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &SQLiteStore{db: db, log: log.With().Str("component", "store.sqlite").Logger()}, nil
}

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return err
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

const sqliteSelect = `SELECT ivod_id, ivod_url, date, meeting_code, meeting_code_str, category, video_type,
	video_start, video_end, video_length, video_url, title, speaker_name, meeting_time, meeting_name,
	committee_names, ai_transcript, ai_status, ai_retries, ly_transcript, ly_status, ly_retries, last_updated
	FROM ivod_transcripts`

type sqliteRowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRow(row sqliteRowScanner) (*model.Record, error) {
	var r model.Record
	var dateStr, meetingTimeStr, lastUpdatedStr, committeeRaw string
	if err := row.Scan(
		&r.IVODID, &r.IVODURL, &dateStr, &r.MeetingCode, &r.MeetingCodeStr, &r.Category, &r.VideoType,
		&r.VideoStart, &r.VideoEnd, &r.VideoLength, &r.VideoURL, &r.Title, &r.SpeakerName, &meetingTimeStr, &r.MeetingName,
		&committeeRaw, &r.AITranscript, &r.AIStatus, &r.AIRetries, &r.LYTranscript, &r.LYStatus, &r.LYRetries, &lastUpdatedStr,
	); err != nil {
		return nil, err
	}
	var err error
	if r.Date, err = time.ParseInLocation("2006-01-02", dateStr, model.TaipeiLocation); err != nil {
		return nil, fmt.Errorf("parse date: %w", err)
	}
	if r.MeetingTime, err = time.Parse(time.RFC3339, meetingTimeStr); err != nil {
		return nil, fmt.Errorf("parse meeting_time: %w", err)
	}
	if r.LastUpdated, err = time.Parse(time.RFC3339, lastUpdatedStr); err != nil {
		return nil, fmt.Errorf("parse last_updated: %w", err)
	}
	if r.CommitteeNames, err = decodeCommitteeNamesJSON(committeeRaw); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id int64) (*model.Record, error) {
	row := s.db.QueryRowContext(ctx, sqliteSelect+" WHERE ivod_id = ?", id)
	rec, err := scanSQLiteRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (s *SQLiteStore) upsert(ctx context.Context, rec *model.Record, stampNow bool) error {
	lastUpdated := rec.LastUpdated
	if stampNow {
		lastUpdated = model.Now()
	}
	committeeJSON, err := encodeCommitteeNamesJSON(rec.CommitteeNames)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ivod_transcripts (
			ivod_id, ivod_url, date, meeting_code, meeting_code_str, category, video_type,
			video_start, video_end, video_length, video_url, title, speaker_name, meeting_time, meeting_name,
			committee_names, ai_transcript, ai_status, ai_retries, ly_transcript, ly_status, ly_retries, last_updated
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(ivod_id) DO UPDATE SET
			ivod_url=excluded.ivod_url, date=excluded.date, meeting_code=excluded.meeting_code,
			meeting_code_str=excluded.meeting_code_str, category=excluded.category, video_type=excluded.video_type,
			video_start=excluded.video_start, video_end=excluded.video_end, video_length=excluded.video_length,
			video_url=excluded.video_url, title=excluded.title, speaker_name=excluded.speaker_name,
			meeting_time=excluded.meeting_time, meeting_name=excluded.meeting_name,
			committee_names=excluded.committee_names, ai_transcript=excluded.ai_transcript,
			ai_status=excluded.ai_status, ai_retries=excluded.ai_retries, ly_transcript=excluded.ly_transcript,
			ly_status=excluded.ly_status, ly_retries=excluded.ly_retries, last_updated=excluded.last_updated
	`,
		rec.IVODID, rec.IVODURL, rec.Date.Format("2006-01-02"), rec.MeetingCode, rec.MeetingCodeStr, rec.Category, rec.VideoType,
		rec.VideoStart, rec.VideoEnd, rec.VideoLength, rec.VideoURL, rec.Title, rec.SpeakerName, rec.MeetingTime.Format(time.RFC3339), rec.MeetingName,
		committeeJSON, rec.AITranscript, rec.AIStatus, rec.AIRetries, rec.LYTranscript, rec.LYStatus, rec.LYRetries, lastUpdated.Format(time.RFC3339),
	)
	if err == nil {
		rec.LastUpdated = lastUpdated
	}
	return err
}

func (s *SQLiteStore) Upsert(ctx context.Context, rec *model.Record) error {
	return s.upsert(ctx, rec, true)
}

func (s *SQLiteStore) UpsertPreservingTimestamp(ctx context.Context, rec *model.Record) error {
	return s.upsert(ctx, rec, false)
}

func (s *SQLiteStore) QueryFailed(ctx context.Context, kind FailedKind, maxRetries int) ([]*model.Record, error) {
	col, retryCol := statusColumns(kind)
	query := sqliteSelect + fmt.Sprintf(" WHERE %s = 'failed'", col)
	args := []any{}
	if maxRetries > 0 {
		query += fmt.Sprintf(" AND %s < ?", retryCol)
		args = append(args, maxRetries)
	}
	query += " ORDER BY date ASC, ivod_id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSQLiteRows(rows)
}

func (s *SQLiteStore) QueryRecentlyUpdated(ctx context.Context, window time.Duration) ([]*model.Record, error) {
	cutoff := model.Now().Add(-window).Format(time.RFC3339)
	rows, err := s.db.QueryContext(ctx, sqliteSelect+" WHERE last_updated >= ? ORDER BY date ASC, ivod_id ASC", cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSQLiteRows(rows)
}

func (s *SQLiteStore) QueryAll(ctx context.Context) ([]*model.Record, error) {
	rows, err := s.db.QueryContext(ctx, sqliteSelect+" ORDER BY ivod_id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSQLiteRows(rows)
}

func (s *SQLiteStore) QueryByIDs(ctx context.Context, ids []int64) ([]*model.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(ids)
	rows, err := s.db.QueryContext(ctx, sqliteSelect+" WHERE ivod_id IN ("+placeholders+") ORDER BY ivod_id ASC", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSQLiteRows(rows)
}

func (s *SQLiteStore) DeleteAll(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM ivod_transcripts")
	return err
}

func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ivod_transcripts").Scan(&n)
	return n, err
}

type sqliteBatch struct {
	tx *sql.Tx
}

func (s *SQLiteStore) BeginBatch(ctx context.Context) (Batch, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteBatch{tx: tx}, nil
}

func (b *sqliteBatch) Upsert(ctx context.Context, rec *model.Record) error {
	lastUpdated := model.Now()
	committeeJSON, err := encodeCommitteeNamesJSON(rec.CommitteeNames)
	if err != nil {
		return err
	}
	_, err = b.tx.ExecContext(ctx, `
		INSERT INTO ivod_transcripts (
			ivod_id, ivod_url, date, meeting_code, meeting_code_str, category, video_type,
			video_start, video_end, video_length, video_url, title, speaker_name, meeting_time, meeting_name,
			committee_names, ai_transcript, ai_status, ai_retries, ly_transcript, ly_status, ly_retries, last_updated
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(ivod_id) DO UPDATE SET
			ivod_url=excluded.ivod_url, date=excluded.date, meeting_code=excluded.meeting_code,
			meeting_code_str=excluded.meeting_code_str, category=excluded.category, video_type=excluded.video_type,
			video_start=excluded.video_start, video_end=excluded.video_end, video_length=excluded.video_length,
			video_url=excluded.video_url, title=excluded.title, speaker_name=excluded.speaker_name,
			meeting_time=excluded.meeting_time, meeting_name=excluded.meeting_name,
			committee_names=excluded.committee_names, ai_transcript=excluded.ai_transcript,
			ai_status=excluded.ai_status, ai_retries=excluded.ai_retries, ly_transcript=excluded.ly_transcript,
			ly_status=excluded.ly_status, ly_retries=excluded.ly_retries, last_updated=excluded.last_updated
	`,
		rec.IVODID, rec.IVODURL, rec.Date.Format("2006-01-02"), rec.MeetingCode, rec.MeetingCodeStr, rec.Category, rec.VideoType,
		rec.VideoStart, rec.VideoEnd, rec.VideoLength, rec.VideoURL, rec.Title, rec.SpeakerName, rec.MeetingTime.Format(time.RFC3339), rec.MeetingName,
		committeeJSON, rec.AITranscript, rec.AIStatus, rec.AIRetries, rec.LYTranscript, rec.LYStatus, rec.LYRetries, lastUpdated.Format(time.RFC3339),
	)
	if err == nil {
		rec.LastUpdated = lastUpdated
	}
	return err
}

func (b *sqliteBatch) Commit(ctx context.Context) error   { return b.tx.Commit() }
func (b *sqliteBatch) Rollback(ctx context.Context) error { return b.tx.Rollback() }

func collectSQLiteRows(rows *sql.Rows) ([]*model.Record, error) {
	var out []*model.Record
	for rows.Next() {
		rec, err := scanSQLiteRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
