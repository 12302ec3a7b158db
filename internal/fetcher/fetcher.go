// Package fetcher talks to the upstream IVOD catalog: listing available
// ids for a date and retrieving one record's raw JSON document or its
// legislative speech-page text.
package fetcher

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const baseURL = "https://ivod.ly.gov.tw/api"

// Options configures a Fetcher.
type Options struct {
	BaseURL      string
	Timeout      time.Duration
	MinSleep     time.Duration
	MaxSleep     time.Duration
	SkipSSL      bool
	SpeechClient SpeechTransport
	Log          zerolog.Logger
}

// Fetcher is a stateless, single-session client for the upstream catalog.
// Workflows call it from a single goroutine; its jitter sleep spaces out
// sequential calls only and is not coordinated across concurrent callers.
type Fetcher struct {
	baseURL string
	client  *http.Client
	speech  SpeechTransport
	min     time.Duration
	max     time.Duration
	log     zerolog.Logger
}

// New builds a Fetcher. A nil SpeechClient in opts defaults to the
// in-process lenient TLS transport.
func New(opts Options) *Fetcher {
	base := opts.BaseURL
	if base == "" {
		base = baseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	speech := opts.SpeechClient
	if speech == nil {
		speech = NewLenientHTTPTransport(timeout)
	}
	client := &http.Client{Timeout: timeout}
	if opts.SkipSSL {
		client.Transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
	}
	return &Fetcher{
		baseURL: base,
		client:  client,
		speech:  speech,
		min:     opts.MinSleep,
		max:     opts.MaxSleep,
		log:     opts.Log.With().Str("component", "fetcher").Logger(),
	}
}

// politeSleep waits a uniform random duration in [min,max], returning
// early if ctx is cancelled.
func (f *Fetcher) politeSleep(ctx context.Context) {
	if f.max <= 0 {
		return
	}
	span := f.max - f.min
	d := f.min
	if span > 0 {
		d += time.Duration(rand.Int63n(int64(span)))
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

func (f *Fetcher) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+path, nil)
	if err != nil {
		return newError(KindNetwork, 0, "build request", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil || os.IsTimeout(err) {
			return newError(KindTimeout, 0, "request timed out", err)
		}
		return newError(KindNetwork, 0, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return newError(KindNetwork, 0, "read body", err)
	}
	if resp.StatusCode != http.StatusOK {
		return newError(KindNetwork, 0, fmt.Sprintf("status %d", resp.StatusCode), nil)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return newError(KindParsing, 0, "decode response", err)
	}
	return nil
}

// latestDateEnvelope is the shape of GET /v2/ivods?limit=1.
type latestDateEnvelope struct {
	IVODs []struct {
		Date string `json:"日期"`
	} `json:"ivods"`
}

// LatestDate returns the calendar date of the most recent record in the
// catalog.
func (f *Fetcher) LatestDate(ctx context.Context) (time.Time, error) {
	f.politeSleep(ctx)
	var env latestDateEnvelope
	if err := f.getJSON(ctx, "/v2/ivods?limit=1", &env); err != nil {
		return time.Time{}, err
	}
	if len(env.IVODs) == 0 {
		return time.Time{}, newError(KindAPI, 0, "empty catalog", nil)
	}
	d, err := time.Parse("2006-01-02", env.IVODs[0].Date)
	if err != nil {
		return time.Time{}, newError(KindParsing, 0, "parse 日期", err)
	}
	return d, nil
}

type listEnvelope struct {
	IVODs []struct {
		IVODID string `json:"IVOD_ID"`
	} `json:"ivods"`
}

// ListIDs returns the ordered ids published for one calendar date.
func (f *Fetcher) ListIDs(ctx context.Context, date time.Time) ([]int64, error) {
	f.politeSleep(ctx)
	path := fmt.Sprintf("/v2/ivods?日期=%s&limit=600", date.Format("2006-01-02"))
	var env listEnvelope
	if err := f.getJSON(ctx, path, &env); err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(env.IVODs))
	for _, item := range env.IVODs {
		id, err := strconv.ParseInt(item.IVODID, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// RawRecord is the raw per-record document returned by the catalog,
// loosely typed because optional upstream fields vary by record.
type RawRecord struct {
	Error   bool            `json:"error"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// GetRecord fetches one record's raw document.
func (f *Fetcher) GetRecord(ctx context.Context, id int64) (json.RawMessage, error) {
	f.politeSleep(ctx)
	var env RawRecord
	if err := f.getJSON(ctx, fmt.Sprintf("/v2/ivods/%d", id), &env); err != nil {
		if e, ok := err.(*Error); ok {
			e.IVODID = id
		}
		return nil, err
	}
	if env.Error {
		return nil, newError(KindAPI, id, env.Message, nil)
	}
	if len(env.Data) == 0 {
		return nil, newError(KindAPI, id, "missing data field", nil)
	}
	return env.Data, nil
}

// GetSpeech fetches and normalizes the legislative speech page for id.
// An empty result is a valid signal that no transcript is available.
func (f *Fetcher) GetSpeech(ctx context.Context, id int64) (string, error) {
	f.politeSleep(ctx)
	url := fmt.Sprintf("https://ivod.ly.gov.tw/Demand/Speech/%d", id)
	body, err := f.speech.FetchSpeechPage(ctx, url)
	if err != nil {
		return "", newError(KindNetwork, id, "speech page fetch", err)
	}
	text := strings.ReplaceAll(body, "<br />", "\n")
	return strings.TrimSpace(text), nil
}
