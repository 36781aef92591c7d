package statement

import (
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		want    domain.Format
	}{
		{"ofx header", []byte("OFXHEADER:100\nDATA:OFXSGML\n"), domain.FormatOFX},
		{"ofx tag lowercase", []byte("<?xml version=\"1.0\"?>\n<ofx><signonmsgsrsv1>"), domain.FormatOFX},
		{"csv comma", []byte("data,descricao,valor\n01/01/2024,x,1,00\n"), domain.FormatCSV},
		{"csv semicolon", []byte("data;descricao;valor\n"), domain.FormatCSV},
		{"delimiter after fifth line", []byte("a\nb\nc\nd\ne\nf,g\n"), domain.FormatUnknown},
		{"plain text", []byte("hello world"), domain.FormatUnknown},
		{"empty", nil, domain.FormatUnknown},
		{"invalid utf8", []byte{0xff, 0xfe, 'a', ';', 'b'}, domain.FormatCSV},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.content))
		})
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, domain.Format(""), f)

	f, err = ParseFormat(" QFX ")
	require.NoError(t, err)
	assert.Equal(t, domain.FormatOFX, f)

	_, err = ParseFormat("xlsx")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestParseOFX(t *testing.T) {
	data, err := os.ReadFile("testdata/checking.ofx")
	require.NoError(t, err)

	res, err := ParseOFX(data)
	require.NoError(t, err)
	require.Len(t, res.Records, 3)

	debit := res.Records[0]
	assert.True(t, debit.Amount.Equal(decimal.RequireFromString("89.90")), "got %s", debit.Amount)
	assert.Equal(t, domain.DirectionOutflow, debit.Direction)
	assert.Equal(t, "2024-12-25", debit.OccurredOn.String())
	assert.Equal(t, "Compra cartao debito", debit.Description, "memo wins over payee")
	assert.Equal(t, "TX-0001", debit.ExternalReference)

	credit := res.Records[1]
	assert.True(t, credit.Amount.Equal(decimal.RequireFromString("2500")))
	assert.Equal(t, domain.DirectionInflow, credit.Direction)
	assert.Equal(t, "SALARIO ACME", credit.Description, "payee used when memo is empty")

	assert.Equal(t, NoDescription, res.Records[2].Description)

	require.NotNil(t, res.DateRange.Start)
	require.NotNil(t, res.DateRange.End)
	assert.Equal(t, "2024-12-05", res.DateRange.Start.String())
	assert.Equal(t, "2024-12-25", res.DateRange.End.String())
	assert.Equal(t, "12345-6", res.Account.AccountID)
	assert.Equal(t, "0341", res.Account.RoutingNumber)
}

func TestParseOFX_Unreadable(t *testing.T) {
	_, err := ParseOFX([]byte("OFXHEADER:100\n<OFX><BANKMSGSRSV1><STMTTRNRS>"))
	assert.ErrorIs(t, err, ErrParseFailed)
}

func TestParseCSV_Defaults(t *testing.T) {
	data := []byte("data,descricao,valor\n25/12/2024,Mercado Central,\"-150,00\"\n")

	res := ParseCSV(data, CSVOptions{})
	require.Len(t, res.Records, 1)

	rec := res.Records[0]
	assert.True(t, rec.Amount.Equal(decimal.RequireFromString("150.00")), "got %s", rec.Amount)
	assert.Equal(t, domain.DirectionOutflow, rec.Direction)
	assert.Equal(t, "2024-12-25", rec.OccurredOn.String())
	assert.Equal(t, "Mercado Central", rec.Description)
}

// An unquoted comma decimal under the comma delimiter splits the amount:
// "150" lands in valor and "00" becomes an extra column. The sign rule still
// holds, so a positive 150 is an inflow.
func TestParseCSV_UnquotedCommaDecimal(t *testing.T) {
	data := []byte("data,descricao,valor\n25/12/2024,Mercado Central,150,00\n")

	res := ParseCSV(data, CSVOptions{})
	require.Len(t, res.Records, 1)

	rec := res.Records[0]
	assert.True(t, rec.Amount.Equal(decimal.RequireFromString("150.00")), "got %s", rec.Amount)
	assert.Equal(t, domain.DirectionInflow, rec.Direction)
	assert.Equal(t, "2024-12-25", rec.OccurredOn.String())
	assert.Equal(t, "Mercado Central", rec.Description)
}

func TestParseCSV_Options(t *testing.T) {
	tests := []struct {
		name      string
		data      []byte
		opts      CSVOptions
		wantCount int
		wantFirst string
		wantDir   domain.Direction
		wantDesc  string
	}{
		{
			name:      "semicolon without header",
			data:      []byte("05/01/2024;Salario;2.500,00\n06/01/2024;Aluguel;-1.200,50\n"),
			opts:      CSVOptions{Delimiter: ";", HasHeader: Bool(false)},
			wantCount: 2,
			wantFirst: "2500",
			wantDir:   domain.DirectionInflow,
			wantDesc:  "Salario",
		},
		{
			name:      "custom columns and date format",
			data:      []byte("Amount|Date|Memo\n-10,5|2024-02-29|Cafe\n"),
			opts:      CSVOptions{Delimiter: "|", DateColumn: "date", DescriptionColumn: "memo", AmountColumn: "amount", DateFormat: "%Y-%m-%d"},
			wantCount: 1,
			wantFirst: "10.5",
			wantDir:   domain.DirectionOutflow,
			wantDesc:  "Cafe",
		},
		{
			name:      "latin1 encoding",
			data:      []byte("data;descricao;valor\n1/2/2024;Padaria Jo\xe3o;-7,00\n"),
			opts:      CSVOptions{Delimiter: ";", Encoding: "iso-8859-1"},
			wantCount: 1,
			wantFirst: "7",
			wantDir:   domain.DirectionOutflow,
			wantDesc:  "Padaria João",
		},
		{
			name:      "bad rows are skipped",
			data:      []byte("data,descricao,valor\n31/02/2024,Bad date,1\n01/03/2024,Bad amount,abc\n02/03/2024,Ok,\"3,00\"\n"),
			opts:      CSVOptions{},
			wantCount: 1,
			wantFirst: "3",
			wantDir:   domain.DirectionInflow,
			wantDesc:  "Ok",
		},
		{
			name:      "byte order mark on header",
			data:      []byte("\xef\xbb\xbfData,Descricao,Valor\n02/03/2024,Ok,\"-3,00\"\n"),
			opts:      CSVOptions{},
			wantCount: 1,
			wantFirst: "3",
			wantDir:   domain.DirectionOutflow,
			wantDesc:  "Ok",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ParseCSV(tt.data, tt.opts)
			require.Len(t, res.Records, tt.wantCount)
			first := res.Records[0]
			assert.True(t, first.Amount.Equal(decimal.RequireFromString(tt.wantFirst)), "got %s", first.Amount)
			assert.Equal(t, tt.wantDir, first.Direction)
			assert.Equal(t, tt.wantDesc, first.Description)
		})
	}
}

func TestParseCSV_NeverFails(t *testing.T) {
	for name, data := range map[string][]byte{
		"missing column": []byte("date,memo,amount\n01/01/2024,x,1\n"),
		"empty":          nil,
		"header only":    []byte("data,descricao,valor\n"),
	} {
		t.Run(name, func(t *testing.T) {
			res := ParseCSV(data, CSVOptions{})
			require.NotNil(t, res)
			assert.Empty(t, res.Records)
			assert.Nil(t, res.DateRange.Start)
			assert.Nil(t, res.DateRange.End)
		})
	}
}

func TestParseLocaleAmount(t *testing.T) {
	tests := map[string]string{
		"150,00":    "150",
		"-1.234,56": "-1234.56",
		"+2.500,00": "2500",
		" 7 ":       "7",
	}
	for in, want := range tests {
		got, err := ParseLocaleAmount(in)
		require.NoError(t, err, in)
		assert.True(t, got.Equal(decimal.RequireFromString(want)), "%q: got %s want %s", in, got, want)
	}

	_, err := ParseLocaleAmount("R$ 10")
	assert.Error(t, err)
}

func TestStrptimeLayout(t *testing.T) {
	assert.Equal(t, "2/1/2006", strptimeLayout("%d/%m/%Y"))
	assert.Equal(t, "2006-1-2 15:4:5", strptimeLayout("%Y-%m-%d %H:%M:%S"))
	assert.Equal(t, "2.1.06", strptimeLayout("%d.%m.%y"))
}

func TestParseFile(t *testing.T) {
	_, _, err := ParseFile([]byte("just words"), "", CSVOptions{})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	res, format, err := ParseFile([]byte("data,descricao,valor\n01/01/2024,x,\"1,00\"\n"), "", CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.FormatCSV, format)
	assert.Len(t, res.Records, 1)

	res, format, err = ParseFile([]byte("01/01/2024;x;1,00\n"), domain.FormatCSV, CSVOptions{Delimiter: ";", HasHeader: Bool(false)})
	require.NoError(t, err)
	assert.Equal(t, domain.FormatCSV, format)
	assert.Len(t, res.Records, 1)
}
