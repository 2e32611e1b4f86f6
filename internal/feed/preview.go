package feed

import (
	"strings"

	syncErrors "stocksync/internal/errors"
)

// previewSampleRows caps the number of data rows returned by a preview
const previewSampleRows = 5

// Preview describes the shape of a feed without binding columns: the
// discovered headers, up to five sample rows, and the detected delimiter.
// Used for pre-flight validation before the engine is enabled.
type Preview struct {
	Columns   []string   `json:"columns"`
	Sample    [][]string `json:"sample"`
	Delimiter string     `json:"delimiter"`
}

// ParsePreview extracts the header and first sample rows from raw feed
// bytes. Unlike Parse it does not require the configured columns to be
// present; it only needs a non-empty document.
func ParsePreview(raw []byte) (*Preview, error) {
	lines := normalizeLines(raw)
	if len(lines) == 0 {
		return nil, syncErrors.ErrEmptyFeed
	}

	delimiter := DetectDelimiter(lines[0])

	header := splitLine(lines[0], delimiter)
	columns := make([]string, len(header))
	for i, field := range header {
		columns[i] = strings.TrimSpace(field)
	}

	sample := make([][]string, 0, previewSampleRows)
	for _, line := range lines[1:] {
		if len(sample) == previewSampleRows {
			break
		}
		if row := splitLine(line, delimiter); row != nil {
			sample = append(sample, row)
		}
	}

	return &Preview{
		Columns:   columns,
		Sample:    sample,
		Delimiter: delimiterName(delimiter),
	}, nil
}

// delimiterName renders a delimiter for display
func delimiterName(delimiter rune) string {
	if delimiter == '\t' {
		return "tab"
	}
	return string(delimiter)
}
