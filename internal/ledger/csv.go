package ledger

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aatumaykin/outreach/internal/logger"
)

// CSVStore keeps the ledger in a flat CSV file.
//
// The first write establishes the header, every later write appends exactly one
// row with O_APPEND and fsyncs before returning. A row torn by a crash is skipped
// on read; the next append closes a dangling quoted field and starts on a fresh
// line, so rows written after the crash stay readable.
type CSVStore struct {
	path   string
	logger *logger.Logger

	mu     sync.Mutex
	closed bool
}

// NewCSVStore creates a CSV ledger at path. The file is created lazily on the
// first Append.
func NewCSVStore(path string, log *logger.Logger) *CSVStore {
	if log == nil {
		log = logger.Nop()
	}
	return &CSVStore{
		path:   path,
		logger: log,
	}
}

// Path returns the ledger file path.
func (s *CSVStore) Path() string {
	return s.path
}

// LoadDoneSet implements Store.
func (s *CSVStore) LoadDoneSet(ctx context.Context, campaignKey string) (map[string]struct{}, error) {
	entries, err := s.Entries(ctx)
	if err != nil {
		return nil, err
	}
	return doneSet(entries, campaignKey), nil
}

// FailedAttempts implements Store.
func (s *CSVStore) FailedAttempts(ctx context.Context, campaignKey string) (map[string]int, error) {
	entries, err := s.Entries(ctx)
	if err != nil {
		return nil, err
	}
	return failedCounts(entries, campaignKey), nil
}

// Entries reads the whole log. A missing file yields no entries.
func (s *CSVStore) Entries(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	file, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return []Entry{}, nil
	}
	if err != nil {
		s.logger.Error("failed to open ledger file", err,
			logger.Field{Key: "file", Value: s.path})
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer file.Close()

	return s.readEntries(file)
}

func (s *CSVStore) readEntries(r io.Reader) ([]Entry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	entries := []Entry{}
	index := defaultColumnIndex()
	line := 0

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				s.logger.Warn("skipping malformed ledger row",
					logger.Field{Key: "file", Value: s.path},
					logger.Field{Key: "line", Value: parseErr.Line},
					logger.Field{Key: "reason", Value: parseErr.Err.Error()})
				continue
			}
			return nil, fmt.Errorf("read ledger: %w", err)
		}

		if line == 1 && isHeader(record) {
			index = headerIndex(record)
			continue
		}

		entry, ok := parseRow(record, index)
		if !ok {
			s.logger.Warn("skipping incomplete ledger row",
				logger.Field{Key: "file", Value: s.path},
				logger.Field{Key: "row", Value: line})
			continue
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// Append implements Store.
func (s *CSVStore) Append(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(e.TargetID) == "" {
		return fmt.Errorf("ledger entry requires target_id")
	}
	if !e.Outcome.Valid() {
		return fmt.Errorf("ledger entry has invalid outcome %q", e.Outcome)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		s.logger.Error("failed to create ledger directory", err,
			logger.Field{Key: "dir", Value: filepath.Dir(s.path)})
		return fmt.Errorf("create ledger directory: %w", err)
	}

	file, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		s.logger.Error("failed to open ledger file for append", err,
			logger.Field{Key: "file", Value: s.path})
		return fmt.Errorf("open ledger: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat ledger: %w", err)
	}

	var buf bytes.Buffer
	if info.Size() == 0 {
		if err := writeRecord(&buf, Columns); err != nil {
			return err
		}
	} else {
		tail, err := inspectTail(file)
		if err != nil {
			return fmt.Errorf("inspect ledger tail: %w", err)
		}
		switch tail {
		case tailOpenQuote:
			// Close the quoted field so the torn row stays confined to its own record.
			buf.WriteString("\"\n")
		case tailTorn:
			buf.WriteByte('\n')
		}
		if tail != tailClean {
			s.logger.Warn("repairing torn ledger tail", logger.Field{Key: "file", Value: s.path})
		}
	}

	if err := writeRecord(&buf, formatRow(e)); err != nil {
		return err
	}

	// One write per row keeps the row contiguous under O_APPEND.
	if _, err := file.Write(buf.Bytes()); err != nil {
		s.logger.Error("failed to write ledger row", err,
			logger.Field{Key: "file", Value: s.path},
			logger.Field{Key: "target_id", Value: e.TargetID})
		return fmt.Errorf("write ledger: %w", err)
	}

	if err := file.Sync(); err != nil {
		s.logger.Error("failed to sync ledger file", err,
			logger.Field{Key: "file", Value: s.path})
		return fmt.Errorf("sync ledger: %w", err)
	}

	s.logger.Debug("ledger entry appended",
		logger.Field{Key: "target_id", Value: e.TargetID},
		logger.Field{Key: "campaign", Value: e.CampaignKey},
		logger.Field{Key: "outcome", Value: string(e.Outcome)})

	return nil
}

// Close marks the store closed. Files are opened per operation, so there is
// nothing else to release.
func (s *CSVStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func writeRecord(buf *bytes.Buffer, record []string) error {
	w := csv.NewWriter(buf)
	if err := w.Write(record); err != nil {
		return fmt.Errorf("encode ledger row: %w", err)
	}
	w.Flush()
	return w.Error()
}

type tailState int

const (
	tailClean     tailState = iota // ends on a record boundary
	tailTorn                       // ends inside an unquoted field
	tailOpenQuote                  // ends inside a quoted field
)

// inspectTail scans the file for the state at EOF. A newline only ends a
// record outside quotes; an escaped quote toggles twice and cancels out.
func inspectTail(file *os.File) (tailState, error) {
	r := bufio.NewReader(io.NewSectionReader(file, 0, math.MaxInt64))
	inQuotes := false
	var last byte
	for {
		b, err := r.ReadByte()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return tailClean, err
		}
		if b == '"' {
			inQuotes = !inQuotes
		}
		last = b
	}

	switch {
	case inQuotes:
		return tailOpenQuote, nil
	case last != '\n':
		return tailTorn, nil
	default:
		return tailClean, nil
	}
}

func formatRow(e Entry) []string {
	label := e.RecipientLabel
	if label == "" {
		label = e.TargetID
	}
	return []string{
		e.TargetID,
		label,
		e.CampaignKey,
		string(e.Outcome),
		e.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

type columnIndex struct {
	targetID, label, campaign, outcome, timestamp int
}

func defaultColumnIndex() columnIndex {
	return columnIndex{targetID: 0, label: 1, campaign: 2, outcome: 3, timestamp: 4}
}

func isHeader(record []string) bool {
	for _, field := range record {
		if strings.EqualFold(strings.TrimSpace(field), "target_id") {
			return true
		}
	}
	return false
}

func headerIndex(record []string) columnIndex {
	idx := columnIndex{targetID: -1, label: -1, campaign: -1, outcome: -1, timestamp: -1}
	for i, field := range record {
		switch strings.ToLower(strings.TrimSpace(field)) {
		case "target_id":
			idx.targetID = i
		case "recipient_label":
			idx.label = i
		case "campaign_key":
			idx.campaign = i
		case "outcome":
			idx.outcome = i
		case "timestamp":
			idx.timestamp = i
		}
	}
	return idx
}

func field(record []string, i int) (string, bool) {
	if i < 0 || i >= len(record) {
		return "", false
	}
	return record[i], true
}

func parseRow(record []string, idx columnIndex) (Entry, bool) {
	targetID, ok := field(record, idx.targetID)
	if !ok || strings.TrimSpace(targetID) == "" {
		return Entry{}, false
	}
	campaign, ok := field(record, idx.campaign)
	if !ok {
		return Entry{}, false
	}
	outcome, ok := field(record, idx.outcome)
	if !ok || !Outcome(outcome).Valid() {
		return Entry{}, false
	}
	rawTS, ok := field(record, idx.timestamp)
	if !ok {
		return Entry{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, rawTS)
	if err != nil {
		return Entry{}, false
	}
	label, _ := field(record, idx.label)

	return Entry{
		TargetID:       targetID,
		RecipientLabel: label,
		CampaignKey:    campaign,
		Outcome:        Outcome(outcome),
		Timestamp:      ts,
	}, true
}
