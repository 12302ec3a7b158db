package assembler

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/billy3321/ivod-engine/internal/model"
)

type fakeSpeech struct {
	text string
	err  error
}

func (f *fakeSpeech) GetSpeech(ctx context.Context, id int64) (string, error) {
	return f.text, f.err
}

func TestAssembleSuccess(t *testing.T) {
	raw := json.RawMessage(`{
		"日期": "2024-03-06",
		"會議時間": "2024-03-06 09:00:00",
		"title": "committee meeting",
		"transcript": {"whisperx": [{"text": "hello"}, {"text": "world"}]},
		"gazette": {"blocks": [["line one", "line two"]]}
	}`)

	rec, err := Assemble(context.Background(), 100, raw, nil, &fakeSpeech{})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if rec.AIStatus != model.StatusSuccess || rec.AITranscript != "helloworld" {
		t.Errorf("AI = %q/%q, want success/\"helloworld\"", rec.AIStatus, rec.AITranscript)
	}
	if rec.LYStatus != model.StatusSuccess || rec.LYTranscript != "line one\nline two" {
		t.Errorf("LY = %q/%q, want success", rec.LYStatus, rec.LYTranscript)
	}
	if rec.AIRetries != 0 || rec.LYRetries != 0 {
		t.Errorf("retries = %d/%d, want 0/0", rec.AIRetries, rec.LYRetries)
	}
}

func TestAssembleMissingRequiredField(t *testing.T) {
	raw := json.RawMessage(`{"title": "no date"}`)
	_, err := Assemble(context.Background(), 1, raw, nil, &fakeSpeech{})
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := err.(*DataError); !ok {
		t.Errorf("err = %T, want *DataError", err)
	}
}

func TestAssembleBadDate(t *testing.T) {
	raw := json.RawMessage(`{"日期": "not-a-date", "會議時間": "2024-03-06 09:00:00"}`)
	_, err := Assemble(context.Background(), 1, raw, nil, &fakeSpeech{})
	if _, ok := err.(*ParsingError); !ok {
		t.Errorf("err = %T, want *ParsingError", err)
	}
}

func TestAssembleFallsBackToSpeechPage(t *testing.T) {
	raw := json.RawMessage(`{
		"日期": "2024-03-06",
		"會議時間": "2024-03-06 09:00:00",
		"transcript": {"whisperx": [{"text": "hi"}]}
	}`)
	rec, err := Assemble(context.Background(), 1, raw, nil, &fakeSpeech{text: "from speech page"})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if rec.LYTranscript != "from speech page" || rec.LYStatus != model.StatusSuccess {
		t.Errorf("LY = %q/%q, want success/\"from speech page\"", rec.LYStatus, rec.LYTranscript)
	}
}

func TestAssembleFailureIncrementsExistingRetries(t *testing.T) {
	raw := json.RawMessage(`{"日期": "2024-03-06", "會議時間": "2024-03-06 09:00:00"}`)
	existing := &model.Record{AIRetries: 2, LYRetries: 4}
	rec, err := Assemble(context.Background(), 1, raw, existing, &fakeSpeech{})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if rec.AIStatus != model.StatusFailed || rec.AIRetries != 3 {
		t.Errorf("AI = %q/%d, want failed/3", rec.AIStatus, rec.AIRetries)
	}
	if rec.LYStatus != model.StatusFailed || rec.LYRetries != 5 {
		t.Errorf("LY = %q/%d, want failed/5", rec.LYStatus, rec.LYRetries)
	}
}

func TestAssembleEmptyWhisperxIsFailure(t *testing.T) {
	raw := json.RawMessage(`{"日期": "2024-03-06", "會議時間": "2024-03-06 09:00:00", "transcript": {"whisperx": []}}`)
	rec, err := Assemble(context.Background(), 1, raw, nil, &fakeSpeech{})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if rec.AIStatus != model.StatusFailed {
		t.Errorf("AIStatus = %q, want failed", rec.AIStatus)
	}
	if rec.AIRetries != 1 {
		t.Errorf("AIRetries = %d, want 1 (seeded, no existing record)", rec.AIRetries)
	}
}
