package statement

import (
	"bytes"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

// NoDescription replaces empty OFX memo and payee fields.
const NoDescription = "No description"

// ParseOFX reads bank and credit card statements from an OFX document.
func ParseOFX(data []byte) (*Result, error) {
	resp, err := ofxgo.ParseResponse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: ofx: %v", ErrParseFailed, err)
	}

	var (
		records []domain.IngestedRecord
		account AccountInfo
	)

	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok {
			continue
		}
		if account.AccountID == "" {
			account = AccountInfo{
				AccountID:     string(stmt.BankAcctFrom.AcctID),
				RoutingNumber: string(stmt.BankAcctFrom.BankID),
			}
		}
		recs, err := ofxTransactions(stmt.BankTranList)
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
	}

	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok {
			continue
		}
		if account.AccountID == "" {
			account = AccountInfo{AccountID: string(stmt.CCAcctFrom.AcctID)}
		}
		recs, err := ofxTransactions(stmt.BankTranList)
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
	}

	res := newResult(records)
	res.Account = account
	return res, nil
}

func ofxTransactions(list *ofxgo.TransactionList) ([]domain.IngestedRecord, error) {
	if list == nil {
		return nil, nil
	}

	records := make([]domain.IngestedRecord, 0, len(list.Transactions))
	for _, tr := range list.Transactions {
		amount, err := decimal.NewFromString(tr.TrnAmt.Rat.FloatString(4))
		if err != nil {
			return nil, fmt.Errorf("%w: ofx amount %s: %v", ErrParseFailed, tr.TrnAmt.Rat.FloatString(4), err)
		}

		rec := domain.NewIngestedRecord(civil.DateOf(tr.DtPosted.Time), ofxDescription(tr), amount)
		rec.ExternalReference = firstNonEmpty(string(tr.FiTID), string(tr.CheckNum))
		records = append(records, rec)
	}
	return records, nil
}

func ofxDescription(tr ofxgo.Transaction) string {
	payee := string(tr.Name)
	if tr.Payee != nil && payee == "" {
		payee = string(tr.Payee.Name)
	}
	if d := firstNonEmpty(string(tr.Memo), payee); d != "" {
		return d
	}
	return NoDescription
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
