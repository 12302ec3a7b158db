// Package ledger implements the append-only Failure Ledger: a plain text
// file recording per-record failure events, read by the Fix workflow and
// trimmed as records are successfully reprocessed.
package ledger

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/billy3321/ivod-engine/internal/model"
)

// Phase tags a Failure Ledger entry with where in the pipeline it failed.
type Phase string

const (
	PhaseProcessing Phase = "processing"
	PhaseIncremental Phase = "incremental"
	PhaseRetry      Phase = "retry"
	PhaseFixRetry   Phase = "fix_retry"
	PhaseManualFix  Phase = "manual_fix"
	PhaseGeneral    Phase = "general"
)

// Ledger appends to and reads from one text file. Ledger operations are
// single-writer within a workflow; concurrent workflows may interleave
// appends but never corrupt a single line (each append is one O_APPEND
// write).
type Ledger struct {
	path string
	log  zerolog.Logger
}

// New builds a Ledger backed by path. The file need not exist yet.
func New(path string, log zerolog.Logger) *Ledger {
	return &Ledger{path: path, log: log.With().Str("component", "ledger").Logger()}
}

// Append records one failure event.
func (l *Ledger) Append(id int64, phase Phase) error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("ledger: open %s: %w", l.path, err)
	}
	defer f.Close()

	line := fmt.Sprintf("%d,%s,%s\n", id, phase, model.Now().Format("2006-01-02 15:04:05"))
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("ledger: write: %w", err)
	}
	return nil
}

// ReadIDs returns the deduplicated set of ids currently recorded in the
// ledger, in first-seen order. Malformed lines are skipped with a warning
// rather than failing the read.
func (l *Ledger) ReadIDs() ([]int64, error) {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", l.path, err)
	}
	defer f.Close()

	seen := make(map[int64]bool)
	var ids []int64

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		id, ok := parseLeadingID(line)
		if !ok {
			l.log.Warn().Str("line", line).Msg("skipping malformed ledger line")
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ledger: scan: %w", err)
	}
	return ids, nil
}

// Remove rewrites the ledger file excluding every line whose id matches.
func (l *Ledger) Remove(id int64) error {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("ledger: open %s: %w", l.path, err)
	}

	var kept []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		lineID, ok := parseLeadingID(strings.TrimSpace(line))
		if ok && lineID == id {
			continue
		}
		kept = append(kept, line)
	}
	f.Close()
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("ledger: scan: %w", err)
	}

	body := strings.Join(kept, "\n")
	if len(kept) > 0 {
		body += "\n"
	}
	if err := os.WriteFile(l.path, []byte(body), 0o644); err != nil {
		return fmt.Errorf("ledger: rewrite: %w", err)
	}
	return nil
}

func parseLeadingID(line string) (int64, bool) {
	field := line
	if i := strings.IndexByte(line, ','); i >= 0 {
		field = line[:i]
	}
	id, err := strconv.ParseInt(strings.TrimSpace(field), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
