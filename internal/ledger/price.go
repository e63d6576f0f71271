package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/wolfman30/virevamind/internal/catalog"
)

// Money is an amount in a currency.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Amount.StringFixed(2), m.Currency)
}

// PriceTable maps session lengths to prices.
type PriceTable struct {
	currency string
	prices   map[catalog.SessionDuration]decimal.Decimal
}

// DefaultPriceTable prices 30, 60 and 90 minute sessions at 75, 120 and 180.
func DefaultPriceTable(currency string) PriceTable {
	return NewPriceTable(currency, map[catalog.SessionDuration]decimal.Decimal{
		catalog.Duration30: decimal.NewFromInt(75),
		catalog.Duration60: decimal.NewFromInt(120),
		catalog.Duration90: decimal.NewFromInt(180),
	})
}

// NewPriceTable builds a table in the given currency (USD when blank).
func NewPriceTable(currency string, prices map[catalog.SessionDuration]decimal.Decimal) PriceTable {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = "USD"
	}
	copied := make(map[catalog.SessionDuration]decimal.Decimal, len(prices))
	for d, p := range prices {
		copied[d] = p
	}
	return PriceTable{currency: currency, prices: copied}
}

// Currency reports the table's currency code.
func (t PriceTable) Currency() string {
	return t.currency
}

// Price looks up the price of a session length.
func (t PriceTable) Price(d catalog.SessionDuration) (Money, error) {
	amount, ok := t.prices[d]
	if !ok {
		return Money{}, &catalog.ValidationError{Field: "duration_minutes", Reason: fmt.Sprintf("has no price for %d minutes", d)}
	}
	return Money{Amount: amount, Currency: t.currency}, nil
}
