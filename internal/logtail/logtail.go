package logtail

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"
)

// Record is one decoded log line.
type Record struct {
	Time  time.Time
	Level slog.Level
	Msg   string
	Attrs map[string]any
	// Raw holds lines that were not JSON.
	Raw string
}

// Read returns at most maxLines from the end of the file at path. A missing
// file yields no lines.
func Read(path string, maxLines int) ([]string, error) {
	if maxLines <= 0 {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	ring := make([]string, maxLines)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	count, next := 0, 0
	for scanner.Scan() {
		ring[next] = scanner.Text()
		next = (next + 1) % maxLines
		if count < maxLines {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	if count < maxLines {
		return slices.Clone(ring[:count]), nil
	}
	return append(slices.Clone(ring[next:]), ring[:next]...), nil
}

// ReadRecords reads the tail and decodes each line. Blank lines are skipped;
// lines that are not slog JSON come back with only Raw set.
func ReadRecords(path string, maxLines int) ([]Record, error) {
	lines, err := Read(path, maxLines)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		records = append(records, Parse(line))
	}
	return records, nil
}

// Parse decodes one line written by slog's JSON handler.
func Parse(line string) Record {
	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return Record{Raw: line}
	}
	rec := Record{Attrs: make(map[string]any, len(fields))}
	for k, v := range fields {
		switch k {
		case slog.TimeKey:
			if s, ok := v.(string); ok {
				rec.Time, _ = time.Parse(time.RFC3339Nano, s)
			}
		case slog.LevelKey:
			if s, ok := v.(string); ok {
				_ = rec.Level.UnmarshalText([]byte(s))
			}
		case slog.MessageKey:
			rec.Msg, _ = v.(string)
		default:
			rec.Attrs[k] = v
		}
	}
	return rec
}

// Format renders a record as a single console line:
// "15:04:05 WARN message key=value ...". Attributes are sorted by key.
func (r Record) Format() string {
	if r.Raw != "" {
		return r.Raw
	}
	var b strings.Builder
	if !r.Time.IsZero() {
		b.WriteString(r.Time.Local().Format("15:04:05"))
		b.WriteByte(' ')
	}
	b.WriteString(fmt.Sprintf("%-5s", r.Level.String()))
	b.WriteByte(' ')
	b.WriteString(r.Msg)

	keys := make([]string, 0, len(r.Attrs))
	for k := range r.Attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, r.Attrs[k])
	}
	return b.String()
}
