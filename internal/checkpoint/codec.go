package checkpoint

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/JakeFAU/news-harvester/internal/harvest"
)

// EncodeIdentifiers renders ids newline-delimited, dropping empties.
func EncodeIdentifiers(ids []harvest.NewsID) []byte {
	var buf bytes.Buffer
	for _, id := range ids {
		if id == "" {
			continue
		}
		buf.WriteString(string(id))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// DecodeIdentifiers parses a newline-delimited identifier list.
func DecodeIdentifiers(data []byte) []harvest.NewsID {
	lines := strings.Split(string(data), "\n")
	ids := make([]harvest.NewsID, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			ids = append(ids, harvest.NewsID(line))
		}
	}
	return ids
}

// EncodeRecords renders records as JSON lines.
func EncodeRecords(records []harvest.ArticleRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return nil, fmt.Errorf("encode record %s: %w", records[i].NewsID, err)
		}
	}
	return buf.Bytes(), nil
}

// DecodeRecords parses JSON lines, ignoring blank lines.
func DecodeRecords(data []byte) ([]harvest.ArticleRecord, error) {
	var records []harvest.ArticleRecord
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec harvest.ArticleRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan records: %w", err)
	}
	return records, nil
}
