// Package dataset loads raw per-source files and writes the assembled outputs.
package dataset

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/albapepper/gamedeals-data/internal/provider"
)

// ErrNoInput is returned when a source has no input file.
var ErrNoInput = errors.New("no input file")

// Extensions are tried in order when locating a source's input file.
var Extensions = []string{".csv", ".jsonl", ".ndjson", ".json"}

const maxLine = 4 << 20

// Locate returns the input file for a source. An override path is used as
// given, relative to dir unless absolute; otherwise dir/<source>.<ext> is
// tried for each known extension.
func Locate(dir string, id provider.SourceID, override string) (string, error) {
	if override != "" {
		path := override
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%w for %s: %v", ErrNoInput, id, err)
		}
		return path, nil
	}
	for _, ext := range Extensions {
		path := filepath.Join(dir, string(id)+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w for %s in %s", ErrNoInput, id, dir)
}

// Load reads every raw record of a file, choosing the format by extension.
func Load(path string) ([]provider.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var records []provider.RawRecord
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		records, err = ReadCSV(f)
	case ".jsonl", ".ndjson":
		records, err = ReadJSONL(f)
	case ".json":
		records, err = ReadJSON(f)
	default:
		return nil, fmt.Errorf("load %s: unsupported format", path)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return records, nil
}

// ReadCSV reads a CSV table with a header row. Header names are trimmed and
// lower-cased; short rows are padded with blanks.
func ReadCSV(r io.Reader) ([]provider.RawRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	headers, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for i, h := range headers {
		headers[i] = normalizeKey(h)
	}

	var records []provider.RawRecord
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rec := make(provider.RawRecord, len(headers))
		for i, h := range headers {
			if h == "" {
				continue
			}
			if i < len(row) {
				rec[h] = row[i]
			} else {
				rec[h] = ""
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// ReadJSONL reads one JSON object per line. Blank lines are ignored.
func ReadJSONL(r io.Reader) ([]provider.RawRecord, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)

	var records []provider.RawRecord
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var obj map[string]interface{}
		if err := json.Unmarshal(b, &obj); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, normalizeKeys(obj))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// ReadJSON reads a JSON array of objects.
func ReadJSON(r io.Reader) ([]provider.RawRecord, error) {
	var objs []map[string]interface{}
	if err := json.NewDecoder(r).Decode(&objs); err != nil {
		return nil, err
	}
	records := make([]provider.RawRecord, len(objs))
	for i, obj := range objs {
		records[i] = normalizeKeys(obj)
	}
	return records, nil
}

func normalizeKeys(obj map[string]interface{}) provider.RawRecord {
	rec := make(provider.RawRecord, len(obj))
	for k, v := range obj {
		rec[normalizeKey(k)] = v
	}
	return rec
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(k, "\ufeff")))
}
