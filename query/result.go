package query

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	paidquery "github.com/paidquery/paidquery-go"
)

// Settlement is the confirmation block a server may embed in a query result,
// proving the payment authorization was executed.
type Settlement struct {
	// Payer is the address that paid.
	Payer string `json:"payer,omitempty"`

	// Transaction is the transaction reference.
	Transaction string `json:"transaction"`

	// Network is the network where the payment settled.
	Network string `json:"network,omitempty"`
}

// Result is the outcome of one metered query.
type Result struct {
	// Rows holds the result rows.
	Rows []map[string]interface{} `json:"rows"`

	// RowCount is the number of rows returned.
	RowCount int `json:"rowCount"`

	// EstimatedCost is the server's pre-execution cost estimate in atomic
	// units. Decimal, never float.
	EstimatedCost decimal.Decimal `json:"estimatedCost"`

	// ActualCost is the metered cost after execution.
	ActualCost decimal.Decimal `json:"actualCost"`

	// ExecutionMs is the server-side execution time in milliseconds.
	ExecutionMs int64 `json:"executionMs"`

	// Settlement is the inline settlement record, if the server included
	// one. Servers may also settle out of band; absence is not an error.
	Settlement *Settlement `json:"settlement,omitempty"`
}

// TransactionRef returns the settlement transaction reference, or "" when
// the server settled out of band.
func (r *Result) TransactionRef() string {
	if r.Settlement == nil {
		return ""
	}
	return r.Settlement.Transaction
}

// decodeResult parses a success body into a Result and merges in a
// header-carried settlement record when the body has none.
func decodeResult(body []byte, headerSettlement *paidquery.SettleResponse) (*Result, error) {
	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, paidquery.NewPaymentError(paidquery.ErrCodeDecode,
			fmt.Sprintf("malformed query result: %v", err), paidquery.ErrDecode)
	}

	if result.Settlement == nil && headerSettlement != nil && headerSettlement.Transaction != "" {
		result.Settlement = &Settlement{
			Payer:       headerSettlement.Payer,
			Transaction: headerSettlement.Transaction,
			Network:     headerSettlement.Network,
		}
	}
	return &result, nil
}
