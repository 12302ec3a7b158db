package store

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/billy3321/ivod-engine/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS ivod_transcripts (
	ivod_id INTEGER PRIMARY KEY,
	ivod_url TEXT,
	date DATE NOT NULL,
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
	meeting_time TIMESTAMPTZ NOT NULL,
	meeting_name TEXT,
	committee_names TEXT[],
	ai_transcript TEXT,
	ai_status TEXT NOT NULL DEFAULT 'pending',
	ai_retries INTEGER NOT NULL DEFAULT 0,
	ly_transcript TEXT,
	ly_status TEXT NOT NULL DEFAULT 'pending',
	ly_retries INTEGER NOT NULL DEFAULT 0,
	last_updated TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS ivod_transcripts_date_idx ON ivod_transcripts (date, ivod_id);
CREATE INDEX IF NOT EXISTS ivod_transcripts_last_updated_idx ON ivod_transcripts (last_updated);
`

// PostgresStore is the PostgreSQL Store adapter: committee_names is a
// native text[] column and both timestamps are timestamptz.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// PostgresDSN builds a libpq connection string from discrete parts.
func PostgresDSN(host string, port int, user, password, database string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(user, password),
		Host:   fmt.Sprintf("%s:%d", host, port),
		Path:   "/" + database,
	}
	q := url.Values{}
	q.Set("sslmode", "disable")
	u.RawQuery = q.Encode()
	return u.String()
}

// OpenPostgres connects and pings the database.
func OpenPostgres(ctx context.Context, dsn string, log zerolog.Logger) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool, log: log.With().Str("component", "store.postgres").Logger()}, nil
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresSchema)
	return err
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*model.Record, error) {
	row := s.pool.QueryRow(ctx, selectColumns+" WHERE ivod_id = $1", id)
	rec, err := scanPostgresRow(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

const selectColumns = `SELECT ivod_id, ivod_url, date, meeting_code, meeting_code_str, category, video_type,
	video_start, video_end, video_length, video_url, title, speaker_name, meeting_time, meeting_name,
	committee_names, ai_transcript, ai_status, ai_retries, ly_transcript, ly_status, ly_retries, last_updated
	FROM ivod_transcripts`

type pgRowScanner interface {
	Scan(dest ...any) error
}

func scanPostgresRow(row pgRowScanner) (*model.Record, error) {
	var r model.Record
	var committeeNames []string
	if err := row.Scan(
		&r.IVODID, &r.IVODURL, &r.Date, &r.MeetingCode, &r.MeetingCodeStr, &r.Category, &r.VideoType,
		&r.VideoStart, &r.VideoEnd, &r.VideoLength, &r.VideoURL, &r.Title, &r.SpeakerName, &r.MeetingTime, &r.MeetingName,
		&committeeNames, &r.AITranscript, &r.AIStatus, &r.AIRetries, &r.LYTranscript, &r.LYStatus, &r.LYRetries, &r.LastUpdated,
	); err != nil {
		return nil, err
	}
	r.CommitteeNames = committeeNames
	return &r, nil
}

func (s *PostgresStore) upsert(ctx context.Context, rec *model.Record, stampNow bool) error {
	lastUpdated := rec.LastUpdated
	if stampNow {
		lastUpdated = model.Now()
	}
	committeeNames := pqStringArray(rec.CommitteeNames)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO ivod_transcripts (
			ivod_id, ivod_url, date, meeting_code, meeting_code_str, category, video_type,
			video_start, video_end, video_length, video_url, title, speaker_name, meeting_time, meeting_name,
			committee_names, ai_transcript, ai_status, ai_retries, ly_transcript, ly_status, ly_retries, last_updated
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
		ON CONFLICT (ivod_id) DO UPDATE SET
			ivod_url = EXCLUDED.ivod_url, date = EXCLUDED.date, meeting_code = EXCLUDED.meeting_code,
			meeting_code_str = EXCLUDED.meeting_code_str, category = EXCLUDED.category, video_type = EXCLUDED.video_type,
			video_start = EXCLUDED.video_start, video_end = EXCLUDED.video_end, video_length = EXCLUDED.video_length,
			video_url = EXCLUDED.video_url, title = EXCLUDED.title, speaker_name = EXCLUDED.speaker_name,
			meeting_time = EXCLUDED.meeting_time, meeting_name = EXCLUDED.meeting_name,
			committee_names = EXCLUDED.committee_names, ai_transcript = EXCLUDED.ai_transcript,
			ai_status = EXCLUDED.ai_status, ai_retries = EXCLUDED.ai_retries, ly_transcript = EXCLUDED.ly_transcript,
			ly_status = EXCLUDED.ly_status, ly_retries = EXCLUDED.ly_retries, last_updated = EXCLUDED.last_updated
	`,
		rec.IVODID, rec.IVODURL, rec.Date, rec.MeetingCode, rec.MeetingCodeStr, rec.Category, rec.VideoType,
		rec.VideoStart, rec.VideoEnd, rec.VideoLength, rec.VideoURL, rec.Title, rec.SpeakerName, rec.MeetingTime, rec.MeetingName,
		committeeNames, rec.AITranscript, rec.AIStatus, rec.AIRetries, rec.LYTranscript, rec.LYStatus, rec.LYRetries, lastUpdated,
	)
	if err == nil {
		rec.LastUpdated = lastUpdated
	}
	return err
}

func (s *PostgresStore) Upsert(ctx context.Context, rec *model.Record) error {
	return s.upsert(ctx, rec, true)
}

func (s *PostgresStore) UpsertPreservingTimestamp(ctx context.Context, rec *model.Record) error {
	return s.upsert(ctx, rec, false)
}

func (s *PostgresStore) QueryFailed(ctx context.Context, kind FailedKind, maxRetries int) ([]*model.Record, error) {
	col, retryCol := statusColumns(kind)
	query := selectColumns + fmt.Sprintf(" WHERE %s = 'failed'", col)
	args := []any{}
	if maxRetries > 0 {
		query += fmt.Sprintf(" AND %s < $1", retryCol)
		args = append(args, maxRetries)
	}
	query += " ORDER BY date ASC, ivod_id ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPostgresRows(rows)
}

func statusColumns(kind FailedKind) (status, retries string) {
	if kind == model.KindAI {
		return "ai_status", "ai_retries"
	}
	return "ly_status", "ly_retries"
}

func (s *PostgresStore) QueryRecentlyUpdated(ctx context.Context, window time.Duration) ([]*model.Record, error) {
	cutoff := model.Now().Add(-window)
	rows, err := s.pool.Query(ctx, selectColumns+" WHERE last_updated >= $1 ORDER BY date ASC, ivod_id ASC", cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPostgresRows(rows)
}

func (s *PostgresStore) QueryAll(ctx context.Context) ([]*model.Record, error) {
	rows, err := s.pool.Query(ctx, selectColumns+" ORDER BY ivod_id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPostgresRows(rows)
}

func (s *PostgresStore) QueryByIDs(ctx context.Context, ids []int64) ([]*model.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, selectColumns+" WHERE ivod_id = ANY($1) ORDER BY ivod_id ASC", ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPostgresRows(rows)
}

func (s *PostgresStore) DeleteAll(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM ivod_transcripts")
	return err
}

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM ivod_transcripts").Scan(&n)
	return n, err
}

func collectPostgresRows(rows pgx.Rows) ([]*model.Record, error) {
	var out []*model.Record
	for rows.Next() {
		rec, err := scanPostgresRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	// Close before checking Err so the connection isn't left mid-query.
	rows.Close()
	return out, rows.Err()
}

// postgresBatch upserts within a single pgx.Tx.
type postgresBatch struct {
	tx pgx.Tx
}

func (s *PostgresStore) BeginBatch(ctx context.Context) (Batch, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &postgresBatch{tx: tx}, nil
}

func (b *postgresBatch) Upsert(ctx context.Context, rec *model.Record) error {
	lastUpdated := model.Now()
	_, err := b.tx.Exec(ctx, `
		INSERT INTO ivod_transcripts (
			ivod_id, ivod_url, date, meeting_code, meeting_code_str, category, video_type,
			video_start, video_end, video_length, video_url, title, speaker_name, meeting_time, meeting_name,
			committee_names, ai_transcript, ai_status, ai_retries, ly_transcript, ly_status, ly_retries, last_updated
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
		ON CONFLICT (ivod_id) DO UPDATE SET
			ivod_url = EXCLUDED.ivod_url, date = EXCLUDED.date, meeting_code = EXCLUDED.meeting_code,
			meeting_code_str = EXCLUDED.meeting_code_str, category = EXCLUDED.category, video_type = EXCLUDED.video_type,
			video_start = EXCLUDED.video_start, video_end = EXCLUDED.video_end, video_length = EXCLUDED.video_length,
			video_url = EXCLUDED.video_url, title = EXCLUDED.title, speaker_name = EXCLUDED.speaker_name,
			meeting_time = EXCLUDED.meeting_time, meeting_name = EXCLUDED.meeting_name,
			committee_names = EXCLUDED.committee_names, ai_transcript = EXCLUDED.ai_transcript,
			ai_status = EXCLUDED.ai_status, ai_retries = EXCLUDED.ai_retries, ly_transcript = EXCLUDED.ly_transcript,
			ly_status = EXCLUDED.ly_status, ly_retries = EXCLUDED.ly_retries, last_updated = EXCLUDED.last_updated
	`,
		rec.IVODID, rec.IVODURL, rec.Date, rec.MeetingCode, rec.MeetingCodeStr, rec.Category, rec.VideoType,
		rec.VideoStart, rec.VideoEnd, rec.VideoLength, rec.VideoURL, rec.Title, rec.SpeakerName, rec.MeetingTime, rec.MeetingName,
		pqStringArray(rec.CommitteeNames), rec.AITranscript, rec.AIStatus, rec.AIRetries, rec.LYTranscript, rec.LYStatus, rec.LYRetries, lastUpdated,
	)
	if err == nil {
		rec.LastUpdated = lastUpdated
	}
	return err
}

func (b *postgresBatch) Commit(ctx context.Context) error   { return b.tx.Commit(ctx) }
func (b *postgresBatch) Rollback(ctx context.Context) error { return b.tx.Rollback(ctx) }

func pqStringArray(s []string) any {
	if s == nil {
		return []string{}
	}
	return s
}
