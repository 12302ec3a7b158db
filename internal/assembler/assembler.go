// Package assembler validates and normalizes one upstream IVOD document
// into the canonical model.Record, extracting the AI transcript inline
// and delegating the LY transcript to the gazette-or-speech-page rule.
package assembler

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/billy3321/ivod-engine/internal/fetcher"
	"github.com/billy3321/ivod-engine/internal/model"
)

// SpeechFetcher is the subset of fetcher.Fetcher the Assembler needs,
// narrowed to an interface so tests can substitute a fake.
type SpeechFetcher interface {
	GetSpeech(ctx context.Context, id int64) (string, error)
}

// rawDoc mirrors the upstream per-record JSON document. Fields absent
// from a given record decode to their zero value.
type rawDoc struct {
	Date        string `json:"日期"`
	MeetingTime string `json:"會議時間"`
	MeetingData struct {
		Committee []string `json:"委員會"`
	} `json:"會議資料"`
	MeetingCode    string `json:"會議代碼"`
	MeetingCodeStr string `json:"會議代碼簡稱"`
	Category       string `json:"category"`
	VideoType      string `json:"video_type"`
	VideoStart     string `json:"video_start"`
	VideoEnd       string `json:"video_end"`
	VideoLength    string `json:"video_length"`
	VideoURL       string `json:"video_url"`
	Title          string `json:"title"`
	SpeakerName    string `json:"speaker_name"`
	MeetingName    string `json:"meeting_name"`
	IVODURL        string `json:"ivod_url"`

	Transcript struct {
		Whisperx []struct {
			Text string `json:"text"`
		} `json:"whisperx"`
	} `json:"transcript"`

	Gazette struct {
		Blocks [][]string `json:"blocks"`
	} `json:"gazette"`
}

// Assemble validates raw, extracts both transcripts, and returns the
// canonical record. existing, if non-nil, supplies the prior retry
// counters so a failed re-fetch increments rather than resets them.
func Assemble(ctx context.Context, id int64, raw json.RawMessage, existing *model.Record, speech SpeechFetcher) (*model.Record, error) {
	var doc rawDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &ParsingError{IVODID: id, Field: "document", Raw: truncate(string(raw), 500), Err: err}
	}

	if doc.Date == "" {
		return nil, &DataError{IVODID: id, Field: "日期"}
	}
	if doc.MeetingTime == "" {
		return nil, &DataError{IVODID: id, Field: "會議時間"}
	}

	date, err := time.ParseInLocation("2006-01-02", doc.Date, model.TaipeiLocation)
	if err != nil {
		return nil, &ParsingError{IVODID: id, Field: "日期", Raw: truncate(doc.Date, 500), Err: err}
	}
	meetingTime, err := parseMeetingTime(doc.MeetingTime)
	if err != nil {
		return nil, &ParsingError{IVODID: id, Field: "會議時間", Raw: truncate(doc.MeetingTime, 500), Err: err}
	}

	rec := &model.Record{
		IVODID:         id,
		IVODURL:        doc.IVODURL,
		Date:           date,
		MeetingCode:    doc.MeetingCode,
		MeetingCodeStr: doc.MeetingCodeStr,
		Category:       doc.Category,
		VideoType:      doc.VideoType,
		VideoStart:     doc.VideoStart,
		VideoEnd:       doc.VideoEnd,
		VideoLength:    doc.VideoLength,
		VideoURL:       doc.VideoURL,
		Title:          doc.Title,
		SpeakerName:    doc.SpeakerName,
		MeetingTime:    meetingTime,
		MeetingName:    doc.MeetingName,
		CommitteeNames: doc.MeetingData.Committee,
	}
	if existing != nil {
		rec.AIRetries = existing.AIRetries
		rec.LYRetries = existing.LYRetries
	}

	aiText, aiOK := extractAITranscript(doc)
	rec.SetTranscript(model.KindAI, aiText, aiOK)

	lyText, lyOK := extractLYTranscript(ctx, id, doc, speech)
	rec.SetTranscript(model.KindLY, lyText, lyOK)

	rec.LastUpdated = model.Now()
	return rec, nil
}

func parseMeetingTime(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, raw, model.TaipeiLocation); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &ParsingError{Field: "會議時間", Raw: truncate(raw, 500)}
}

func extractAITranscript(doc rawDoc) (string, bool) {
	if len(doc.Transcript.Whisperx) == 0 {
		return "", false
	}
	var b strings.Builder
	for _, seg := range doc.Transcript.Whisperx {
		b.WriteString(seg.Text)
	}
	text := strings.TrimSpace(b.String())
	return text, text != ""
}

func extractLYTranscript(ctx context.Context, id int64, doc rawDoc, speech SpeechFetcher) (string, bool) {
	if len(doc.Gazette.Blocks) > 0 {
		paragraphs := make([]string, 0, len(doc.Gazette.Blocks))
		for _, block := range doc.Gazette.Blocks {
			paragraphs = append(paragraphs, strings.Join(block, "\n"))
		}
		text := strings.TrimSpace(strings.Join(paragraphs, "\n\n"))
		if text != "" {
			return text, true
		}
	}
	if speech == nil {
		return "", false
	}
	text, err := speech.GetSpeech(ctx, id)
	if err != nil || text == "" {
		return "", false
	}
	return text, true
}

var _ SpeechFetcher = (*fetcher.Fetcher)(nil)
