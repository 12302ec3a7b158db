package model

import "testing"

func TestSetTranscriptSuccessResetsRetries(t *testing.T) {
	r := &Record{AIRetries: 3, AIStatus: StatusFailed}
	r.SetTranscript(KindAI, "hello", true)

	if r.AIStatus != StatusSuccess {
		t.Errorf("AIStatus = %q, want success", r.AIStatus)
	}
	if r.AIRetries != 0 {
		t.Errorf("AIRetries = %d, want 0", r.AIRetries)
	}
	if r.AITranscript != "hello" {
		t.Errorf("AITranscript = %q, want hello", r.AITranscript)
	}
}

func TestSetTranscriptFailureIncrementsRetries(t *testing.T) {
	r := &Record{LYRetries: 1}
	r.SetTranscript(KindLY, "", false)

	if r.LYStatus != StatusFailed {
		t.Errorf("LYStatus = %q, want failed", r.LYStatus)
	}
	if r.LYRetries != 2 {
		t.Errorf("LYRetries = %d, want 2", r.LYRetries)
	}
}

func TestFailed(t *testing.T) {
	r := &Record{AIStatus: StatusFailed, LYStatus: StatusSuccess}
	if !r.Failed(KindAI) {
		t.Error("Failed(KindAI) = false, want true")
	}
	if r.Failed(KindLY) {
		t.Error("Failed(KindLY) = true, want false")
	}
}

func TestNowUsesTaipeiLocation(t *testing.T) {
	now := Now()
	if now.Location() != TaipeiLocation {
		t.Errorf("Now() location = %v, want %v", now.Location(), TaipeiLocation)
	}
	_, offset := now.Zone()
	if offset != 8*3600 {
		t.Errorf("offset = %d, want %d", offset, 8*3600)
	}
}
