package twapstore

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/tidwall/pretty"
)

// Record is a single Twap
type Record struct {
	// source code, line breaks are stored as a literal `\n`
	Source string `json:"source"`
	URL    string `json:"url"`
	ID     string `json:"id"`
}

// escapedNewline is what line breaks look like inside Source
const escapedNewline = `\n`

// DecodeSource replaces escaped line breaks with real ones
func DecodeSource(s string) string {
	return strings.ReplaceAll(s, escapedNewline, "\n")
}

// EncodeSource is the inverse of DecodeSource for sources
// that don't already contain a literal `\n`
func EncodeSource(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", escapedNewline)
}

var prettyOptions = &pretty.Options{
	Width:    80,
	Prefix:   "",
	Indent:   "  ",
	SortKeys: false,
}

// MarshalRecords serializes records as a pretty-printed JSON array.
// Field order is stable: source, url, id.
func MarshalRecords(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	// source code is full of < > &, keep them readable
	enc.SetEscapeHTML(false)
	if err := enc.Encode(records); err != nil {
		return nil, err
	}
	return pretty.PrettyOptions(buf.Bytes(), prettyOptions), nil
}

func UnmarshalRecords(d []byte) ([]Record, error) {
	var records []Record
	err := json.Unmarshal(d, &records)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// removeByURL returns records without the ones matching url
// and the number of removed records
func removeByURL(records []Record, url string) ([]Record, int) {
	res := records[:0]
	for _, rec := range records {
		if rec.URL != url {
			res = append(res, rec)
		}
	}
	return res, len(records) - len(res)
}

// findByURL returns index of the first record matching url, -1 if not found
func findByURL(records []Record, url string) int {
	for i := range records {
		if records[i].URL == url {
			return i
		}
	}
	return -1
}
