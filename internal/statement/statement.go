// Package statement turns raw bank statement files into normalized records.
package statement

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

var (
	// ErrUnsupportedFormat is returned when the file is neither OFX nor CSV.
	ErrUnsupportedFormat = errors.New("unsupported statement format, use OFX or CSV")
	// ErrParseFailed is returned when the file structure cannot be decoded at all.
	ErrParseFailed = errors.New("statement could not be parsed")
)

// AccountInfo identifies the account a statement was exported from, when the
// format carries it.
type AccountInfo struct {
	AccountID     string `json:"account_id,omitempty"`
	RoutingNumber string `json:"routing_number,omitempty"`
}

// Result is the outcome of parsing one statement.
type Result struct {
	Records   []domain.IngestedRecord `json:"records"`
	DateRange domain.DateRange        `json:"date_range"`
	Account   AccountInfo             `json:"account"`
}

// detectLines is how many leading lines are sniffed for a CSV delimiter.
const detectLines = 5

// DetectFormat sniffs the content. Invalid bytes never cause an error.
func DetectFormat(data []byte) domain.Format {
	content := string(data)
	if !utf8.ValidString(content) {
		content = strings.ToValidUTF8(content, "")
	}

	upper := strings.ToUpper(content)
	if strings.Contains(upper, "<OFX>") || strings.Contains(upper, "OFXHEADER") {
		return domain.FormatOFX
	}

	lines := strings.SplitN(content, "\n", detectLines+1)
	if len(lines) > detectLines {
		lines = lines[:detectLines]
	}
	for _, line := range lines {
		if strings.ContainsAny(line, ",;") {
			return domain.FormatCSV
		}
	}

	return domain.FormatUnknown
}

// ParseFormat normalizes a user supplied format name. Empty means auto-detect.
func ParseFormat(name string) (domain.Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return "", nil
	case "ofx", "qfx":
		return domain.FormatOFX, nil
	case "csv":
		return domain.FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}

// Parse decodes data in the given format.
func Parse(data []byte, format domain.Format, opts CSVOptions) (*Result, error) {
	switch format {
	case domain.FormatOFX:
		return ParseOFX(data)
	case domain.FormatCSV:
		return ParseCSV(data, opts), nil
	default:
		return nil, ErrUnsupportedFormat
	}
}

// ParseFile detects the format when none is given, then parses. It returns
// the format that was used.
func ParseFile(data []byte, format domain.Format, opts CSVOptions) (*Result, domain.Format, error) {
	if format == "" {
		format = DetectFormat(data)
	}
	if format == domain.FormatUnknown {
		return nil, format, ErrUnsupportedFormat
	}

	res, err := Parse(data, format, opts)
	if err != nil {
		return nil, format, err
	}
	return res, format, nil
}

func newResult(records []domain.IngestedRecord) *Result {
	if records == nil {
		records = []domain.IngestedRecord{}
	}
	return &Result{
		Records:   records,
		DateRange: domain.RangeOf(records),
	}
}
