package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"

	"github.com/billy3321/ivod-engine/internal/model"
)

const mysqlSchema = `
CREATE TABLE IF NOT EXISTS ivod_transcripts (
	ivod_id BIGINT PRIMARY KEY,
	ivod_url TEXT,
	date DATE NOT NULL,
	meeting_code VARCHAR(64),
	meeting_code_str VARCHAR(64),
	category VARCHAR(128),
	video_type VARCHAR(64),
	video_start VARCHAR(64),
	video_end VARCHAR(64),
	video_length VARCHAR(64),
	video_url TEXT,
	title TEXT,
	speaker_name VARCHAR(128),
	meeting_time DATETIME(6) NOT NULL,
	meeting_name VARCHAR(255),
	committee_names JSON,
	ai_transcript LONGTEXT,
	ai_status VARCHAR(16) NOT NULL DEFAULT 'pending',
	ai_retries INT NOT NULL DEFAULT 0,
	ly_transcript LONGTEXT,
	ly_status VARCHAR(16) NOT NULL DEFAULT 'pending',
	ly_retries INT NOT NULL DEFAULT 0,
	last_updated DATETIME(6) NOT NULL,
	INDEX ivod_transcripts_date_idx (date, ivod_id),
	INDEX ivod_transcripts_last_updated_idx (last_updated)
) ENGINE=InnoDB;
`

// MySQLStore is the MySQL Store adapter: committee_names is a JSON
// column, and both timestamps are DATETIME(6) handled by the driver's
// parseTime option.
type MySQLStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// MySQLDSN builds a go-sql-driver/mysql DSN from discrete parts.
// parseTime=true makes the driver hand back time.Time for DATETIME
// columns directly, so this adapter never hand-parses a timestamp.
func MySQLDSN(host string, port int, user, password, database string) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=Local", user, password, host, port, database)
}

func OpenMySQL(ctx context.Context, dsn string, log zerolog.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return &MySQLStore{db: db, log: log.With().Str("component", "store.mysql").Logger()}, nil
}

func (s *MySQLStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, mysqlSchema)
	return err
}

func (s *MySQLStore) Close() error { return s.db.Close() }

func (s *MySQLStore) Get(ctx context.Context, id int64) (*model.Record, error) {
	row := s.db.QueryRowContext(ctx, mysqlSelect+" WHERE ivod_id = ?", id)
	rec, err := scanMySQLRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

const mysqlSelect = `SELECT ivod_id, ivod_url, date, meeting_code, meeting_code_str, category, video_type,
	video_start, video_end, video_length, video_url, title, speaker_name, meeting_time, meeting_name,
	committee_names, ai_transcript, ai_status, ai_retries, ly_transcript, ly_status, ly_retries, last_updated
	FROM ivod_transcripts`

func scanMySQLRow(row *sql.Row) (*model.Record, error) {
	var r model.Record
	var committeeJSON sql.NullString
	if err := row.Scan(
		&r.IVODID, &r.IVODURL, &r.Date, &r.MeetingCode, &r.MeetingCodeStr, &r.Category, &r.VideoType,
		&r.VideoStart, &r.VideoEnd, &r.VideoLength, &r.VideoURL, &r.Title, &r.SpeakerName, &r.MeetingTime, &r.MeetingName,
		&committeeJSON, &r.AITranscript, &r.AIStatus, &r.AIRetries, &r.LYTranscript, &r.LYStatus, &r.LYRetries, &r.LastUpdated,
	); err != nil {
		return nil, err
	}
	names, err := decodeCommitteeNamesJSON(committeeJSON.String)
	if err != nil {
		return nil, err
	}
	r.CommitteeNames = names
	return &r, nil
}

func scanMySQLRows(rows *sql.Rows) (*model.Record, error) {
	var r model.Record
	var committeeJSON sql.NullString
	if err := rows.Scan(
		&r.IVODID, &r.IVODURL, &r.Date, &r.MeetingCode, &r.MeetingCodeStr, &r.Category, &r.VideoType,
		&r.VideoStart, &r.VideoEnd, &r.VideoLength, &r.VideoURL, &r.Title, &r.SpeakerName, &r.MeetingTime, &r.MeetingName,
		&committeeJSON, &r.AITranscript, &r.AIStatus, &r.AIRetries, &r.LYTranscript, &r.LYStatus, &r.LYRetries, &r.LastUpdated,
	); err != nil {
		return nil, err
	}
	names, err := decodeCommitteeNamesJSON(committeeJSON.String)
	if err != nil {
		return nil, err
	}
	r.CommitteeNames = names
	return &r, nil
}

func (s *MySQLStore) upsert(ctx context.Context, rec *model.Record, stampNow bool) error {
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
		ON DUPLICATE KEY UPDATE
			ivod_url=VALUES(ivod_url), date=VALUES(date), meeting_code=VALUES(meeting_code),
			meeting_code_str=VALUES(meeting_code_str), category=VALUES(category), video_type=VALUES(video_type),
			video_start=VALUES(video_start), video_end=VALUES(video_end), video_length=VALUES(video_length),
			video_url=VALUES(video_url), title=VALUES(title), speaker_name=VALUES(speaker_name),
			meeting_time=VALUES(meeting_time), meeting_name=VALUES(meeting_name),
			committee_names=VALUES(committee_names), ai_transcript=VALUES(ai_transcript),
			ai_status=VALUES(ai_status), ai_retries=VALUES(ai_retries), ly_transcript=VALUES(ly_transcript),
			ly_status=VALUES(ly_status), ly_retries=VALUES(ly_retries), last_updated=VALUES(last_updated)
	`,
		rec.IVODID, rec.IVODURL, rec.Date, rec.MeetingCode, rec.MeetingCodeStr, rec.Category, rec.VideoType,
		rec.VideoStart, rec.VideoEnd, rec.VideoLength, rec.VideoURL, rec.Title, rec.SpeakerName, rec.MeetingTime, rec.MeetingName,
		committeeJSON, rec.AITranscript, rec.AIStatus, rec.AIRetries, rec.LYTranscript, rec.LYStatus, rec.LYRetries, lastUpdated,
	)
	if err == nil {
		rec.LastUpdated = lastUpdated
	}
	return err
}

func (s *MySQLStore) Upsert(ctx context.Context, rec *model.Record) error {
	return s.upsert(ctx, rec, true)
}

func (s *MySQLStore) UpsertPreservingTimestamp(ctx context.Context, rec *model.Record) error {
	return s.upsert(ctx, rec, false)
}

func (s *MySQLStore) QueryFailed(ctx context.Context, kind FailedKind, maxRetries int) ([]*model.Record, error) {
	col, retryCol := statusColumns(kind)
	query := mysqlSelect + fmt.Sprintf(" WHERE %s = 'failed'", col)
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
	return collectMySQLRows(rows)
}

func (s *MySQLStore) QueryRecentlyUpdated(ctx context.Context, window time.Duration) ([]*model.Record, error) {
	cutoff := model.Now().Add(-window)
	rows, err := s.db.QueryContext(ctx, mysqlSelect+" WHERE last_updated >= ? ORDER BY date ASC, ivod_id ASC", cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMySQLRows(rows)
}

func (s *MySQLStore) QueryAll(ctx context.Context) ([]*model.Record, error) {
	rows, err := s.db.QueryContext(ctx, mysqlSelect+" ORDER BY ivod_id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMySQLRows(rows)
}

func (s *MySQLStore) QueryByIDs(ctx context.Context, ids []int64) ([]*model.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(ids)
	rows, err := s.db.QueryContext(ctx, mysqlSelect+" WHERE ivod_id IN ("+placeholders+") ORDER BY ivod_id ASC", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMySQLRows(rows)
}

func (s *MySQLStore) DeleteAll(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM ivod_transcripts")
	return err
}

func (s *MySQLStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ivod_transcripts").Scan(&n)
	return n, err
}

func collectMySQLRows(rows *sql.Rows) ([]*model.Record, error) {
	var out []*model.Record
	for rows.Next() {
		rec, err := scanMySQLRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type mysqlBatch struct {
	tx *sql.Tx
}

func (s *MySQLStore) BeginBatch(ctx context.Context) (Batch, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &mysqlBatch{tx: tx}, nil
}

func (b *mysqlBatch) Upsert(ctx context.Context, rec *model.Record) error {
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
		ON DUPLICATE KEY UPDATE
			ivod_url=VALUES(ivod_url), date=VALUES(date), meeting_code=VALUES(meeting_code),
			meeting_code_str=VALUES(meeting_code_str), category=VALUES(category), video_type=VALUES(video_type),
			video_start=VALUES(video_start), video_end=VALUES(video_end), video_length=VALUES(video_length),
			video_url=VALUES(video_url), title=VALUES(title), speaker_name=VALUES(speaker_name),
			meeting_time=VALUES(meeting_time), meeting_name=VALUES(meeting_name),
			committee_names=VALUES(committee_names), ai_transcript=VALUES(ai_transcript),
			ai_status=VALUES(ai_status), ai_retries=VALUES(ai_retries), ly_transcript=VALUES(ly_transcript),
			ly_status=VALUES(ly_status), ly_retries=VALUES(ly_retries), last_updated=VALUES(last_updated)
	`,
		rec.IVODID, rec.IVODURL, rec.Date, rec.MeetingCode, rec.MeetingCodeStr, rec.Category, rec.VideoType,
		rec.VideoStart, rec.VideoEnd, rec.VideoLength, rec.VideoURL, rec.Title, rec.SpeakerName, rec.MeetingTime, rec.MeetingName,
		committeeJSON, rec.AITranscript, rec.AIStatus, rec.AIRetries, rec.LYTranscript, rec.LYStatus, rec.LYRetries, lastUpdated,
	)
	if err == nil {
		rec.LastUpdated = lastUpdated
	}
	return err
}

func (b *mysqlBatch) Commit(ctx context.Context) error   { return b.tx.Commit() }
func (b *mysqlBatch) Rollback(ctx context.Context) error { return b.tx.Rollback() }

func inClause(ids []int64) (string, []any) {
	placeholders := ""
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args[i] = id
	}
	return placeholders, args
}
