// Package backup implements the JSON envelope Backup writes and Restore
// reads, streaming records one at a time so a large table never needs
// to be held twice in memory.
package backup

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/billy3321/ivod-engine/internal/model"
	"github.com/billy3321/ivod-engine/internal/store"
)

const envelopeVersion = 1

// Metadata is the envelope header written before the record array.
type Metadata struct {
	BackupTime  string `json:"backup_time"`
	DBBackend   string `json:"db_backend"`
	RecordCount int    `json:"record_count"`
	Version     int    `json:"version"`
}

// envelopeRecord mirrors model.Record's JSON shape for the backup file.
// Field names are snake_case to match the rest of the engine's wire
// conventions rather than Go's exported-field defaults.
type envelopeRecord struct {
	IVODID         int64    `json:"ivod_id"`
	IVODURL        string   `json:"ivod_url"`
	Date           string   `json:"date"`
	MeetingCode    string   `json:"meeting_code"`
	MeetingCodeStr string   `json:"meeting_code_str"`
	Category       string   `json:"category"`
	VideoType      string   `json:"video_type"`
	VideoStart     string   `json:"video_start"`
	VideoEnd       string   `json:"video_end"`
	VideoLength    string   `json:"video_length"`
	VideoURL       string   `json:"video_url"`
	Title          string   `json:"title"`
	SpeakerName    string   `json:"speaker_name"`
	MeetingTime    string   `json:"meeting_time"`
	MeetingName    string   `json:"meeting_name"`
	CommitteeNames []string `json:"committee_names"`
	AITranscript   string   `json:"ai_transcript"`
	AIStatus       string   `json:"ai_status"`
	AIRetries      int      `json:"ai_retries"`
	LYTranscript   string   `json:"ly_transcript"`
	LYStatus       string   `json:"ly_status"`
	LYRetries      int      `json:"ly_retries"`
	LastUpdated    string   `json:"last_updated"`
}

func toEnvelope(r *model.Record) envelopeRecord {
	return envelopeRecord{
		IVODID:         r.IVODID,
		IVODURL:        r.IVODURL,
		Date:           r.Date.Format("2006-01-02"),
		MeetingCode:    r.MeetingCode,
		MeetingCodeStr: r.MeetingCodeStr,
		Category:       r.Category,
		VideoType:      r.VideoType,
		VideoStart:     r.VideoStart,
		VideoEnd:       r.VideoEnd,
		VideoLength:    r.VideoLength,
		VideoURL:       r.VideoURL,
		Title:          r.Title,
		SpeakerName:    r.SpeakerName,
		MeetingTime:    r.MeetingTime.Format("2006-01-02T15:04:05-07:00"),
		MeetingName:    r.MeetingName,
		CommitteeNames: r.CommitteeNames,
		AITranscript:   r.AITranscript,
		AIStatus:       string(r.AIStatus),
		AIRetries:      r.AIRetries,
		LYTranscript:   r.LYTranscript,
		LYStatus:       string(r.LYStatus),
		LYRetries:      r.LYRetries,
		LastUpdated:    r.LastUpdated.Format("2006-01-02T15:04:05-07:00"),
	}
}

func fromEnvelope(e envelopeRecord) (*model.Record, error) {
	date, err := parseInTaipei("2006-01-02", e.Date)
	if err != nil {
		return nil, fmt.Errorf("backup: record %d: parse date: %w", e.IVODID, err)
	}
	meetingTime, err := parseInTaipei("2006-01-02T15:04:05-07:00", e.MeetingTime)
	if err != nil {
		return nil, fmt.Errorf("backup: record %d: parse meeting_time: %w", e.IVODID, err)
	}
	lastUpdated, err := parseInTaipei("2006-01-02T15:04:05-07:00", e.LastUpdated)
	if err != nil {
		return nil, fmt.Errorf("backup: record %d: parse last_updated: %w", e.IVODID, err)
	}
	return &model.Record{
		IVODID:         e.IVODID,
		IVODURL:        e.IVODURL,
		Date:           date,
		MeetingCode:    e.MeetingCode,
		MeetingCodeStr: e.MeetingCodeStr,
		Category:       e.Category,
		VideoType:      e.VideoType,
		VideoStart:     e.VideoStart,
		VideoEnd:       e.VideoEnd,
		VideoLength:    e.VideoLength,
		VideoURL:       e.VideoURL,
		Title:          e.Title,
		SpeakerName:    e.SpeakerName,
		MeetingTime:    meetingTime,
		MeetingName:    e.MeetingName,
		CommitteeNames: e.CommitteeNames,
		AITranscript:   e.AITranscript,
		AIStatus:       model.TranscriptStatus(e.AIStatus),
		AIRetries:      e.AIRetries,
		LYTranscript:   e.LYTranscript,
		LYStatus:       model.TranscriptStatus(e.LYStatus),
		LYRetries:      e.LYRetries,
		LastUpdated:    lastUpdated,
	}, nil
}

func parseInTaipei(layout, value string) (time.Time, error) {
	return time.ParseInLocation(layout, value, model.TaipeiLocation)
}

// Backup writes every row in st to path as the envelope {metadata, data}.
// Records are encoded one at a time into a buffered writer rather than
// marshaled as one giant slice, so the backup never holds two full
// in-memory copies of the table.
func Backup(ctx context.Context, st store.Store, path, dbBackend string, log zerolog.Logger) (Metadata, error) {
	log = log.With().Str("component", "backup").Logger()

	records, err := st.QueryAll(ctx)
	if err != nil {
		return Metadata{}, fmt.Errorf("backup: query all: %w", err)
	}

	meta := Metadata{
		BackupTime:  model.Now().Format(time.RFC3339),
		DBBackend:   dbBackend,
		RecordCount: len(records),
		Version:     envelopeVersion,
	}

	f, err := os.Create(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("backup: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return Metadata{}, fmt.Errorf("backup: marshal metadata: %w", err)
	}
	if _, err := fmt.Fprintf(w, `{"metadata":%s,"data":[`, metaJSON); err != nil {
		return Metadata{}, fmt.Errorf("backup: write header: %w", err)
	}

	for i, rec := range records {
		if ctx.Err() != nil {
			return Metadata{}, ctx.Err()
		}
		if i > 0 {
			if _, err := w.WriteString(","); err != nil {
				return Metadata{}, fmt.Errorf("backup: write separator: %w", err)
			}
		}
		if err := enc.Encode(toEnvelope(rec)); err != nil {
			return Metadata{}, fmt.Errorf("backup: encode record %d: %w", rec.IVODID, err)
		}
	}
	if _, err := w.WriteString("]}"); err != nil {
		return Metadata{}, fmt.Errorf("backup: write footer: %w", err)
	}
	if err := w.Flush(); err != nil {
		return Metadata{}, fmt.Errorf("backup: flush: %w", err)
	}

	log.Info().Str("path", path).Int("records", len(records)).Msg("backup complete")
	return meta, nil
}

// Options controls Restore's destructive steps.
type Options struct {
	ForceCreate bool
	ForceClear  bool
}

// Restore reads the envelope at path and re-inserts every record,
// preserving last_updated verbatim rather than re-stamping it. Records
// are decoded one at a time from the file rather than unmarshaled as
// one slice.
func Restore(ctx context.Context, st store.Store, path string, opts Options, log zerolog.Logger) (int, error) {
	log = log.With().Str("component", "backup").Logger()

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("restore: open %s: %w", path, err)
	}
	defer f.Close()

	if opts.ForceCreate {
		if err := st.EnsureSchema(ctx); err != nil {
			return 0, fmt.Errorf("restore: ensure schema: %w", err)
		}
	}
	if opts.ForceClear {
		if err := st.DeleteAll(ctx); err != nil {
			return 0, fmt.Errorf("restore: clear existing rows: %w", err)
		}
	}

	dec := json.NewDecoder(f)
	if err := skipToDataArray(dec); err != nil {
		return 0, fmt.Errorf("restore: %w", err)
	}

	count := 0
	for dec.More() {
		if ctx.Err() != nil {
			return count, ctx.Err()
		}
		var env envelopeRecord
		if err := dec.Decode(&env); err != nil {
			return count, fmt.Errorf("restore: decode record %d: %w", count, err)
		}
		rec, err := fromEnvelope(env)
		if err != nil {
			return count, err
		}
		if err := st.UpsertPreservingTimestamp(ctx, rec); err != nil {
			return count, fmt.Errorf("restore: upsert record %d: %w", rec.IVODID, err)
		}
		count++
	}

	log.Info().Str("path", path).Int("records", count).Msg("restore complete")
	return count, nil
}

// skipToDataArray advances dec past the envelope's opening brace,
// "metadata" object, and the "data" key, leaving the decoder positioned
// just before the first element of the data array (or its closing
// bracket, if empty).
func skipToDataArray(dec *json.Decoder) error {
	// {
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("expected envelope object: %w", err)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		key, _ := keyTok.(string)
		if key == "data" {
			if _, err := dec.Token(); err != nil {
				return fmt.Errorf("expected data array: %w", err)
			}
			return nil
		}
		// skip this key's value entirely
		var discard json.RawMessage
		if err := dec.Decode(&discard); err != nil {
			return fmt.Errorf("skip key %q: %w", key, err)
		}
	}
	return fmt.Errorf("envelope missing \"data\" key")
}
