package feed

import (
	"encoding/csv"
	"strings"

	syncErrors "stocksync/internal/errors"
)

// delimiterCandidates are tried in order against the header line; on a
// tie the earlier candidate wins.
var delimiterCandidates = []rune{',', ';', '\t', '|'}

// Snapshot is the normalized result of parsing one feed document: a
// SKU to quantity mapping plus the header bindings used to build it.
// Duplicate SKUs resolve last-row-wins. Every key is a non-empty trimmed
// string and every quantity is >= 0.
type Snapshot struct {
	Quantities    map[string]int
	Headers       []string
	Delimiter     rune
	SKUIndex      int
	QuantityIndex int
}

// Len returns the number of distinct SKUs in the snapshot
func (s *Snapshot) Len() int {
	return len(s.Quantities)
}

// SKUs returns the set of SKUs present in the snapshot
func (s *Snapshot) SKUs() map[string]struct{} {
	skus := make(map[string]struct{}, len(s.Quantities))
	for sku := range s.Quantities {
		skus[sku] = struct{}{}
	}
	return skus
}

// Parse turns raw feed bytes into a Snapshot. It strips a UTF-8 BOM,
// normalizes line endings, auto-detects the delimiter from the header
// line, and binds the configured SKU and quantity columns
// case-insensitively. Malformed short rows and rows with an empty SKU are
// skipped silently. Pure function of its inputs.
func Parse(raw []byte, skuColumn, quantityColumn string) (*Snapshot, error) {
	lines := normalizeLines(raw)

	// Header plus at least one data row required
	if len(lines) < 2 {
		return nil, syncErrors.ErrEmptyFeed
	}

	headerLine := lines[0]
	delimiter := DetectDelimiter(headerLine)

	header := splitLine(headerLine, delimiter)
	available := make([]string, len(header))
	for i, field := range header {
		available[i] = strings.TrimSpace(field)
	}

	skuIndex := findColumn(available, skuColumn)
	if skuIndex < 0 {
		return nil, &syncErrors.ColumnNotFoundError{Which: "SKU", Column: skuColumn, Available: available}
	}
	quantityIndex := findColumn(available, quantityColumn)
	if quantityIndex < 0 {
		return nil, &syncErrors.ColumnNotFoundError{Which: "quantity", Column: quantityColumn, Available: available}
	}

	minFields := skuIndex
	if quantityIndex > minFields {
		minFields = quantityIndex
	}
	minFields++

	quantities := make(map[string]int)
	for _, line := range lines[1:] {
		row := splitLine(line, delimiter)
		if len(row) < minFields {
			continue
		}

		sku := strings.TrimSpace(row[skuIndex])
		if sku == "" {
			continue
		}

		quantities[sku] = parseQuantity(row[quantityIndex])
	}

	return &Snapshot{
		Quantities:    quantities,
		Headers:       available,
		Delimiter:     delimiter,
		SKUIndex:      skuIndex,
		QuantityIndex: quantityIndex,
	}, nil
}

// DetectDelimiter picks the candidate delimiter that yields the most
// fields when the header line is parsed with it. Deterministic: on a tie
// the earliest candidate in the fixed order `,` `;` tab `|` wins.
func DetectDelimiter(headerLine string) rune {
	best := delimiterCandidates[0]
	bestCount := 0
	for _, candidate := range delimiterCandidates {
		count := len(splitLine(headerLine, candidate))
		if count > bestCount {
			best = candidate
			bestCount = count
		}
	}
	return best
}

// normalizeLines strips a leading UTF-8 BOM, converts CRLF and bare CR
// line endings to LF, and drops blank lines.
func normalizeLines(raw []byte) []string {
	content := string(raw)
	content = strings.TrimPrefix(content, "\xEF\xBB\xBF")
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// splitLine parses one delimited line into fields. Quoted fields are
// honored; lines that do not parse as a delimited record yield nil and
// get skipped by the caller's short-row check.
func splitLine(line string, delimiter rune) []string {
	reader := csv.NewReader(strings.NewReader(line))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	fields, err := reader.Read()
	if err != nil {
		return nil
	}
	return fields
}

// findColumn locates a column name in the header, case-insensitive exact
// match after trimming.
func findColumn(header []string, name string) int {
	want := strings.ToLower(strings.TrimSpace(name))
	for i, field := range header {
		if strings.ToLower(field) == want {
			return i
		}
	}
	return -1
}

// parseQuantity strips every character except digits, `.` and `-` from a
// quantity field, parses the leading integer part (fractions truncate),
// and clamps the result to >= 0.
func parseQuantity(field string) int {
	var cleaned strings.Builder
	for _, r := range field {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			cleaned.WriteRune(r)
		}
	}

	s := cleaned.String()
	if s == "" {
		return 0
	}

	i := 0
	negative := false
	if s[0] == '-' {
		negative = true
		i = 1
	}

	value := 0
	for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		value = value*10 + int(s[i]-'0')
	}

	if negative {
		return 0
	}
	return value
}
