// Package index keeps a search index eventually consistent with the
// Store: it compares a small set of fields per candidate record and
// bulk-indexes only the ones that differ.
//
// Modeled on the upload reconciliation loop this engine borrows its
// "compare then fix only the diffs" shape from, but driven by the
// workflow orchestrator on demand rather than a ticker.
package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/rs/zerolog"

	"github.com/billy3321/ivod-engine/internal/model"
	"github.com/billy3321/ivod-engine/internal/store"
)

const mapping = `{
	"settings": {
		"analysis": {
			"analyzer": {
				"ivod_analyzer": {
					"type": "custom",
					"tokenizer": "ik_max_word",
					"filter": ["lowercase"]
				}
			}
		}
	},
	"mappings": {
		"properties": {
			"ivod_id":       {"type": "integer"},
			"title":         {"type": "text", "analyzer": "ivod_analyzer"},
			"ai_transcript": {"type": "text", "analyzer": "ivod_analyzer"},
			"ly_transcript": {"type": "text", "analyzer": "ivod_analyzer"},
			"last_updated":  {"type": "date"}
		}
	}
}`

// Document is the subset of a record's fields kept in the search index.
type Document struct {
	IVODID       int64  `json:"ivod_id"`
	Title        string `json:"title"`
	AITranscript string `json:"ai_transcript"`
	LYTranscript string `json:"ly_transcript"`
	LastUpdated  string `json:"last_updated"`
}

func toDocument(r *model.Record) Document {
	return Document{
		IVODID:       r.IVODID,
		Title:        r.Title,
		AITranscript: r.AITranscript,
		LYTranscript: r.LYTranscript,
		LastUpdated:  r.LastUpdated.Format(time.RFC3339),
	}
}

// Result reports the outcome of one Align call.
type Result struct {
	Updated int
	Skipped int
	Errors  int
}

// Success reports whether the alignment completed with no per-item
// errors. An unavailable index is reported by Ping, not by Result.
func (r Result) Success() bool { return r.Errors == 0 }

// Aligner compares Store records against a search index and re-indexes
// only the ones that differ.
type Aligner struct {
	client  *elasticsearch.Client
	index   string
	enabled bool
	log     zerolog.Logger
}

// New builds an Aligner. enabled mirrors config.Config.EnableElasticsearch
// — when false, Ping always reports unavailable and Align is a no-op.
func New(addr, user, pass, indexName string, enabled bool, log zerolog.Logger) (*Aligner, error) {
	if !enabled {
		return &Aligner{index: indexName, enabled: false, log: log.With().Str("component", "index").Logger()}, nil
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{addr},
		Username:  user,
		Password:  pass,
	})
	if err != nil {
		return nil, fmt.Errorf("index: build client: %w", err)
	}
	return &Aligner{
		client:  client,
		index:   indexName,
		enabled: true,
		log:     log.With().Str("component", "index").Logger(),
	}, nil
}

// Ping reports whether the index is reachable. A disabled or unreachable
// index is not a failure — callers should treat it as "skip alignment".
func (a *Aligner) Ping(ctx context.Context) bool {
	if !a.enabled {
		a.log.Info().Msg("elasticsearch disabled, skipping alignment")
		return false
	}
	resp, err := a.client.Ping(a.client.Ping.WithContext(ctx))
	if err != nil {
		a.log.Warn().Err(err).Msg("elasticsearch unreachable, skipping alignment")
		return false
	}
	defer resp.Body.Close()
	return !resp.IsError()
}

// EnsureIndex creates the index with its mapping if it does not already
// exist.
func (a *Aligner) EnsureIndex(ctx context.Context) error {
	existsResp, err := a.client.Indices.Exists([]string{a.index}, a.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("index: check existence: %w", err)
	}
	defer existsResp.Body.Close()
	if existsResp.StatusCode == 200 {
		return nil
	}

	createResp, err := a.client.Indices.Create(a.index,
		a.client.Indices.Create.WithContext(ctx),
		a.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		return fmt.Errorf("index: create: %w", err)
	}
	defer createResp.Body.Close()
	if createResp.IsError() {
		return fmt.Errorf("index: create returned status %s", createResp.Status())
	}
	a.log.Info().Str("index", a.index).Msg("created search index")
	return nil
}

// Selector picks which Store records are candidates for alignment.
type Selector struct {
	IDs   []int64
	Full  bool
	Since time.Duration // zero means unset
}

// candidates resolves a Selector against the Store.
func (a *Aligner) candidates(ctx context.Context, st store.Store, sel Selector) ([]*model.Record, error) {
	switch {
	case len(sel.IDs) > 0:
		return st.QueryByIDs(ctx, sel.IDs)
	case sel.Full:
		return st.QueryAll(ctx)
	case sel.Since > 0:
		return st.QueryRecentlyUpdated(ctx, sel.Since)
	default:
		return st.QueryRecentlyUpdated(ctx, 7*24*time.Hour)
	}
}

// Align compares each candidate against the index and bulk-indexes the
// ones that differ, flushing every 100 documents.
func (a *Aligner) Align(ctx context.Context, st store.Store, sel Selector) (Result, error) {
	var res Result
	if !a.Ping(ctx) {
		return res, nil
	}
	if err := a.EnsureIndex(ctx); err != nil {
		return res, err
	}

	records, err := a.candidates(ctx, st, sel)
	if err != nil {
		return res, fmt.Errorf("index: query candidates: %w", err)
	}

	var pending []*model.Record
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		updated, errs, err := a.bulkIndex(ctx, pending)
		res.Updated += updated
		res.Errors += errs
		pending = pending[:0]
		return err
	}

	for _, rec := range records {
		same, err := a.matches(ctx, rec)
		if err != nil {
			res.Errors++
			continue
		}
		if same {
			res.Skipped++
			continue
		}
		pending = append(pending, rec)
		if len(pending) >= 100 {
			if err := flush(); err != nil {
				return res, err
			}
		}
	}
	if err := flush(); err != nil {
		return res, err
	}
	return res, nil
}

// matches reports whether the indexed document already has the same
// title/ai_transcript/ly_transcript as rec.
func (a *Aligner) matches(ctx context.Context, rec *model.Record) (bool, error) {
	resp, err := a.client.Get(a.index, strconv.FormatInt(rec.IVODID, 10), a.client.Get.WithContext(ctx))
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == 404 {
		return false, nil
	}
	if resp.IsError() {
		return false, fmt.Errorf("index: get %d returned status %s", rec.IVODID, resp.Status())
	}

	var envelope struct {
		Source Document `json:"_source"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return false, err
	}
	want := toDocument(rec)
	return envelope.Source.Title == want.Title &&
		envelope.Source.AITranscript == want.AITranscript &&
		envelope.Source.LYTranscript == want.LYTranscript, nil
}

func (a *Aligner) bulkIndex(ctx context.Context, records []*model.Record) (updated, errs int, err error) {
	var buf bytes.Buffer
	for _, rec := range records {
		meta := map[string]any{"index": map[string]any{"_index": a.index, "_id": strconv.FormatInt(rec.IVODID, 10)}}
		metaLine, _ := json.Marshal(meta)
		buf.Write(metaLine)
		buf.WriteByte('\n')
		docLine, _ := json.Marshal(toDocument(rec))
		buf.Write(docLine)
		buf.WriteByte('\n')
	}

	req := esapi.BulkRequest{Body: bytes.NewReader(buf.Bytes())}
	resp, err := req.Do(ctx, a.client)
	if err != nil {
		return 0, len(records), fmt.Errorf("index: bulk request: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Errors bool `json:"errors"`
		Items  []struct {
			Index struct {
				Status int `json:"status"`
			} `json:"index"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, len(records), fmt.Errorf("index: decode bulk response: %w", err)
	}

	for _, item := range result.Items {
		if item.Index.Status >= 200 && item.Index.Status < 300 {
			updated++
		} else {
			errs++
		}
	}
	return updated, errs, nil
}
