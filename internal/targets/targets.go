// Package targets loads the candidate work set and resolves the pending queue
// for a campaign.
package targets

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/wasilibs/go-re2"
	"golang.org/x/text/unicode/norm"

	"github.com/aatumaykin/outreach/internal/logger"
)

// Record is one row of the candidate work set.
type Record struct {
	TargetID       string
	RecipientLabel string
	Locator        string
}

// Label returns the recipient label, defaulting to the target id.
func (r Record) Label() string {
	if r.RecipientLabel != "" {
		return r.RecipientLabel
	}
	return r.TargetID
}

// LoadOptions tunes boundary filtering of input rows.
type LoadOptions struct {
	// IDPattern, when set, keeps only rows whose target_id matches.
	IDPattern string
}

// LoadStats reports what the loader dropped.
type LoadStats struct {
	Rows       int
	MissingID  int
	Duplicates int
	Filtered   int
	Malformed  int
}

// LoadCSV reads a target table with columns target_id, recipient_label, locator.
// Column order is taken from the header. Rows without target_id and rows that
// are not valid CSV are discarded.
func LoadCSV(path string, opts LoadOptions, log *logger.Logger) ([]Record, LoadStats, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, LoadStats{}, fmt.Errorf("open targets: %w", err)
	}
	defer file.Close()

	return Parse(file, opts, log)
}

// Parse reads target rows from r. See LoadCSV.
func Parse(r io.Reader, opts LoadOptions, log *logger.Logger) ([]Record, LoadStats, error) {
	if log == nil {
		log = logger.Nop()
	}

	var pattern *re2.Regexp
	if opts.IDPattern != "" {
		compiled, err := re2.Compile(opts.IDPattern)
		if err != nil {
			return nil, LoadStats{}, fmt.Errorf("compile id pattern: %w", err)
		}
		pattern = compiled
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []Record{}, LoadStats{}, nil
	}
	if err != nil {
		return nil, LoadStats{}, fmt.Errorf("read targets header: %w", err)
	}

	idCol, labelCol, locatorCol := -1, -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case "target_id":
			idCol = i
		case "recipient_label":
			labelCol = i
		case "locator":
			locatorCol = i
		}
	}
	if idCol < 0 {
		return nil, LoadStats{}, fmt.Errorf("targets header has no target_id column")
	}

	var (
		records = []Record{}
		stats   LoadStats
		seen    = make(map[string]struct{})
	)

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return nil, stats, fmt.Errorf("read targets: %w", err)
			}
			stats.Rows++
			stats.Malformed++
			log.Warn("skipping malformed target row",
				logger.Field{Key: "line", Value: parseErr.StartLine},
				logger.Field{Key: "reason", Value: parseErr.Err.Error()})
			continue
		}
		stats.Rows++

		rec := Record{
			TargetID:       normalize(column(row, idCol)),
			RecipientLabel: normalize(column(row, labelCol)),
			Locator:        strings.TrimSpace(column(row, locatorCol)),
		}

		if rec.TargetID == "" {
			stats.MissingID++
			continue
		}
		if pattern != nil && !pattern.MatchString(rec.TargetID) {
			stats.Filtered++
			continue
		}
		if _, dup := seen[rec.TargetID]; dup {
			stats.Duplicates++
			log.Warn("duplicate target id, keeping first occurrence",
				logger.Field{Key: "target_id", Value: rec.TargetID})
			continue
		}
		seen[rec.TargetID] = struct{}{}
		records = append(records, rec)
	}

	log.Debug("targets loaded",
		logger.Field{Key: "rows", Value: stats.Rows},
		logger.Field{Key: "kept", Value: len(records)},
		logger.Field{Key: "missing_id", Value: stats.MissingID},
		logger.Field{Key: "duplicates", Value: stats.Duplicates},
		logger.Field{Key: "filtered", Value: stats.Filtered},
		logger.Field{Key: "malformed", Value: stats.Malformed})

	return records, stats, nil
}

// Resolve returns records whose target id is not in done, preserving input order.
func Resolve(records []Record, done map[string]struct{}) []Record {
	pending := make([]Record, 0, len(records))
	for _, rec := range records {
		if _, ok := done[rec.TargetID]; ok {
			continue
		}
		pending = append(pending, rec)
	}
	return pending
}

// Exhausted splits pending into records still eligible and records that
// already failed maxAttempts times. maxAttempts <= 0 disables the cap.
func Exhausted(pending []Record, failed map[string]int, maxAttempts int) (eligible, exhausted []Record) {
	if maxAttempts <= 0 {
		return pending, nil
	}
	eligible = make([]Record, 0, len(pending))
	for _, rec := range pending {
		if failed[rec.TargetID] >= maxAttempts {
			exhausted = append(exhausted, rec)
			continue
		}
		eligible = append(eligible, rec)
	}
	return eligible, exhausted
}

func column(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func normalize(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}
