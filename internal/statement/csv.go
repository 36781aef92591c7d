package statement

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

// CSVOptions configures the delimited text parser. Empty fields take the
// values of DefaultCSVOptions.
type CSVOptions struct {
	Delimiter         string `json:"delimiter,omitempty"`
	DateColumn        string `json:"date_column,omitempty"`
	DescriptionColumn string `json:"description_column,omitempty"`
	AmountColumn      string `json:"amount_column,omitempty"`
	// DateFormat is a strptime style pattern such as %d/%m/%Y.
	DateFormat string `json:"date_format,omitempty"`
	HasHeader  *bool  `json:"has_header,omitempty"`
	Encoding   string `json:"encoding,omitempty"`
}

// DefaultCSVOptions matches the export layout of most Brazilian bank portals.
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{
		Delimiter:         ",",
		DateColumn:        "data",
		DescriptionColumn: "descricao",
		AmountColumn:      "valor",
		DateFormat:        "%d/%m/%Y",
		HasHeader:         Bool(true),
		Encoding:          "utf-8",
	}
}

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

func (o CSVOptions) withDefaults() CSVOptions {
	def := DefaultCSVOptions()
	if o.Delimiter == "" {
		o.Delimiter = def.Delimiter
	}
	if o.DateColumn == "" {
		o.DateColumn = def.DateColumn
	}
	if o.DescriptionColumn == "" {
		o.DescriptionColumn = def.DescriptionColumn
	}
	if o.AmountColumn == "" {
		o.AmountColumn = def.AmountColumn
	}
	if o.DateFormat == "" {
		o.DateFormat = def.DateFormat
	}
	if o.HasHeader == nil {
		o.HasHeader = def.HasHeader
	}
	if o.Encoding == "" {
		o.Encoding = def.Encoding
	}
	return o
}

func (o CSVOptions) comma() rune {
	switch strings.ToLower(o.Delimiter) {
	case `\t`, "tab":
		return '\t'
	}
	r, _ := utf8.DecodeRuneInString(o.Delimiter)
	if r == utf8.RuneError {
		return ','
	}
	return r
}

// decoder resolves the text codec. Unknown names fall back to UTF-8, whose
// decoder replaces invalid bytes instead of failing.
func (o CSVOptions) decoder() *encoding.Decoder {
	enc, err := htmlindex.Get(o.Encoding)
	if err != nil {
		enc = unicode.UTF8
	}
	return enc.NewDecoder()
}

// ParseCSV never fails: rows with a bad date or amount are skipped and an
// unreadable file yields zero records.
func ParseCSV(data []byte, opts CSVOptions) *Result {
	opts = opts.withDefaults()
	layout := strptimeLayout(opts.DateFormat)

	r := csv.NewReader(transform.NewReader(bytes.NewReader(data), opts.decoder()))
	r.Comma = opts.comma()
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	dateIdx, descIdx, amountIdx := 0, 1, 2
	if *opts.HasHeader {
		header, err := r.Read()
		if err != nil {
			return newResult(nil)
		}
		cols := headerIndex(header)
		var ok bool
		if dateIdx, ok = cols[normalizeHeader(opts.DateColumn)]; !ok {
			return newResult(nil)
		}
		if descIdx, ok = cols[normalizeHeader(opts.DescriptionColumn)]; !ok {
			return newResult(nil)
		}
		if amountIdx, ok = cols[normalizeHeader(opts.AmountColumn)]; !ok {
			return newResult(nil)
		}
	}

	var records []domain.IngestedRecord
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				continue
			}
			break
		}

		rec, ok := csvRecord(row, dateIdx, descIdx, amountIdx, layout)
		if !ok {
			continue
		}
		records = append(records, rec)
	}

	return newResult(records)
}

func csvRecord(row []string, dateIdx, descIdx, amountIdx int, layout string) (domain.IngestedRecord, bool) {
	if dateIdx >= len(row) || descIdx >= len(row) || amountIdx >= len(row) {
		return domain.IngestedRecord{}, false
	}

	t, err := time.Parse(layout, strings.TrimSpace(row[dateIdx]))
	if err != nil {
		return domain.IngestedRecord{}, false
	}

	amount, err := ParseLocaleAmount(row[amountIdx])
	if err != nil {
		return domain.IngestedRecord{}, false
	}

	return domain.NewIngestedRecord(civil.DateOf(t), strings.TrimSpace(row[descIdx]), amount), true
}

// ParseLocaleAmount reads amounts written with '.' as thousands separator and
// ',' as decimal separator, e.g. "-1.234,56".
func ParseLocaleAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	s = strings.TrimPrefix(s, "+")
	return decimal.NewFromString(s)
}

func headerIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		key := normalizeHeader(name)
		if _, dup := cols[key]; !dup {
			cols[key] = i
		}
	}
	return cols
}

func normalizeHeader(name string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF")))
}

var strptimeDirectives = map[byte]string{
	'd': "2",
	'm': "1",
	'Y': "2006",
	'y': "06",
	'H': "15",
	'I': "3",
	'M': "4",
	'S': "5",
	'p': "PM",
	'b': "Jan",
	'B': "January",
	'a': "Mon",
	'A': "Monday",
	'%': "%",
}

// strptimeLayout converts a strptime pattern into a time.Parse layout.
// Numeric fields accept one or two digits like strptime does.
func strptimeLayout(pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c != '%' || i+1 == len(pattern) {
			b.WriteByte(c)
			continue
		}
		i++
		if layout, ok := strptimeDirectives[pattern[i]]; ok {
			b.WriteString(layout)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(pattern[i])
	}
	return b.String()
}
