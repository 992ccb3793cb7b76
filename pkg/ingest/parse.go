package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/eunmann/phonedb/pkg/phone"
	"github.com/eunmann/phonedb/pkg/store"
)

// SkipReason classifies why a source line produced no record. Per-line
// problems are counted, never fatal.
type SkipReason int

const (
	skipNone SkipReason = iota
	// SkipEmptyLine is a blank or whitespace-only line.
	SkipEmptyLine
	// SkipTooFewFields means the line has no field at the phone position.
	SkipTooFewFields
	// SkipInvalidPhone means the phone field did not normalize.
	SkipInvalidPhone
)

func (r SkipReason) String() string {
	switch r {
	case SkipEmptyLine:
		return "empty-line"
	case SkipTooFewFields:
		return "too-few-fields"
	case SkipInvalidPhone:
		return "invalid-phone"
	default:
		return "none"
	}
}

// lineParser turns decoded source lines into records. The delimiter is
// detected from the first line unless configured, and when the phone
// locator is a column name the first line doubles as the header row.
type lineParser struct {
	delimiter   rune
	phoneColumn string

	headerMode bool
	headers    []string
	phoneIdx   int
	resolved   bool
}

func newLineParser(phoneColumn string, delimiter rune) *lineParser {
	p := &lineParser{delimiter: delimiter, phoneColumn: phoneColumn, phoneIdx: -1}
	if idx, err := strconv.Atoi(phoneColumn); err == nil && idx >= 0 {
		p.phoneIdx = idx
		p.resolved = true
	} else {
		p.headerMode = true
	}
	return p
}

// Parse processes one line. A header line yields (zero record, skipNone)
// with consumed=true. Errors are reserved for unrecoverable layout
// problems: a named phone column missing from the header.
func (p *lineParser) Parse(line string) (rec store.Record, reason SkipReason, header bool, err error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return store.Record{}, SkipEmptyLine, false, nil
	}

	line = unwrapEnvelope(line)

	if p.delimiter == 0 {
		p.delimiter = detectDelimiter(line)
	}
	fields := strings.Split(line, string(p.delimiter))

	if p.headerMode && p.headers == nil {
		p.headers = make([]string, len(fields))
		for i, h := range fields {
			p.headers[i] = strings.TrimSpace(h)
			if strings.EqualFold(p.headers[i], p.phoneColumn) {
				p.phoneIdx = i
				p.resolved = true
			}
		}
		if !p.resolved {
			return store.Record{}, skipNone, false, fmt.Errorf("phone column %q not in header %v", p.phoneColumn, p.headers)
		}
		return store.Record{}, skipNone, true, nil
	}

	if len(fields) <= p.phoneIdx {
		return store.Record{}, SkipTooFewFields, false, nil
	}

	canonical, nerr := phone.Normalize(fields[p.phoneIdx])
	if nerr != nil {
		return store.Record{}, SkipInvalidPhone, false, nil
	}

	rec = store.Record{
		Phone:          canonical,
		FormattedPhone: phone.Format(canonical),
		Fields:         p.attributes(fields),
	}
	return rec, skipNone, false, nil
}

// attributes maps the non-phone fields by header name, or by position
// ("f0", "f1", ...) for headerless fixed-layout sources.
func (p *lineParser) attributes(fields []string) map[string]string {
	attrs := make(map[string]string, len(fields)-1)
	for i, f := range fields {
		if i == p.phoneIdx {
			continue
		}
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if p.headerMode && i < len(p.headers) && p.headers[i] != "" {
			attrs[p.headers[i]] = f
		} else {
			attrs["f"+strconv.Itoa(i)] = f
		}
	}
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}

// unwrapEnvelope extracts the inner value of a JSON envelope line
// ({"_0": "..."}). Anything that does not parse as one is used verbatim.
func unwrapEnvelope(line string) string {
	if !strings.HasPrefix(strings.TrimSpace(line), "{") {
		return line
	}
	var env map[string]string
	if err := json.Unmarshal([]byte(line), &env); err != nil {
		return line
	}
	if inner, ok := env["_0"]; ok {
		return inner
	}
	return line
}

// detectDelimiter picks the most frequent of pipe, tab, comma in a line,
// defaulting to pipe when none occurs.
func detectDelimiter(line string) rune {
	best, bestCount := '|', 0
	for _, d := range []rune{'|', '\t', ','} {
		if c := strings.Count(line, string(d)); c > bestCount {
			best, bestCount = d, c
		}
	}
	return best
}
