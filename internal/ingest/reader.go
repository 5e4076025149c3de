// Package ingest turns profiler query-log dumps into QueryRecords. Each
// record is validated and constructed exactly once here; nothing downstream
// re-inspects raw log fields.
package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"query-doctor/internal/model"
)

// maxLineBytes bounds a single log line; captured SQL can be large.
const maxLineBytes = 4 * 1024 * 1024

type rawFrame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
	Class    string `json:"class"`
}

type rawRecord struct {
	SQL             string     `json:"sql"`
	ExecutionTimeMs float64    `json:"execution_time_ms"`
	RowCount        *int       `json:"row_count"`
	Backtrace       []rawFrame `json:"backtrace"`
}

func (r *rawRecord) toRecord() model.QueryRecord {
	rec := model.QueryRecord{
		SQL:             strings.TrimSpace(r.SQL),
		ExecutionTimeMs: r.ExecutionTimeMs,
		RowCount:        r.RowCount,
	}
	for _, f := range r.Backtrace {
		rec.Backtrace = append(rec.Backtrace, model.Frame{
			File:     f.File,
			Line:     f.Line,
			Function: f.Function,
			Class:    f.Class,
		})
	}
	return rec
}

// ParseRecords reads query records from r. Both JSON Lines and a single
// JSON array are accepted. Records without SQL text are counted as skipped,
// not errors; a malformed line fails the whole source so truncated dumps
// are noticed rather than silently half-read.
func ParseRecords(r io.Reader) (records []model.QueryRecord, skipped int, err error) {
	br := bufio.NewReader(r)

	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}

	if first == '[' {
		var raws []rawRecord
		if err := json.NewDecoder(br).Decode(&raws); err != nil {
			return nil, 0, fmt.Errorf("decode query log array: %w", err)
		}
		for i := range raws {
			if rec := raws[i].toRecord(); rec.SQL != "" {
				records = append(records, rec)
			} else {
				skipped++
			}
		}
		return records, skipped, nil
	}

	scanner := bufio.NewScanner(br)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var raw rawRecord
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			return nil, skipped, fmt.Errorf("decode query log line %d: %w", lineNo, err)
		}
		if rec := raw.toRecord(); rec.SQL != "" {
			records = append(records, rec)
		} else {
			skipped++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, err
	}
	return records, skipped, nil
}

// LoadFile parses a single query-log file.
func LoadFile(path string) ([]model.QueryRecord, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	return ParseRecords(f)
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.Peek(1)
		if err != nil {
			return 0, err
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			if _, err := br.ReadByte(); err != nil {
				return 0, err
			}
		default:
			return b[0], nil
		}
	}
}
