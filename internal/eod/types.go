package eod

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"seller-market/internal/types"
)

// Summary aggregates one account's reconciled orders for a day.
type Summary struct {
	Account          string          `json:"account"`
	Broker           string          `json:"broker"`
	Day              string          `json:"day"`
	Orders           int             `json:"orders"`
	BuyOrders        int             `json:"buy_orders"`
	SellOrders       int             `json:"sell_orders"`
	DoneOrders       int             `json:"done_orders"`
	TotalVolume      int64           `json:"total_volume"`
	ExecutedVolume   int64           `json:"executed_volume"`
	RemainedVolume   int64           `json:"remained_volume"`
	ExecutedFraction decimal.Decimal `json:"executed_fraction"`
	TotalAmount      int64           `json:"total_amount"`
}

// Summarize folds orders into a Summary. The executed fraction is
// executed/total volume rounded to four places, zero when nothing was ordered.
func Summarize(account, broker, day string, orders []types.OrderResult) Summary {
	s := Summary{Account: account, Broker: broker, Day: day, Orders: len(orders)}
	for _, o := range orders {
		switch o.Side {
		case types.SideBuy:
			s.BuyOrders++
		case types.SideSell:
			s.SellOrders++
		}
		if o.IsDone {
			s.DoneOrders++
		}
		s.TotalVolume += o.Volume
		s.ExecutedVolume += o.ExecutedVolume
		s.RemainedVolume += o.RemainedVolume
		s.TotalAmount += o.NetAmount
	}
	s.ExecutedFraction = decimal.Zero
	if s.TotalVolume > 0 {
		s.ExecutedFraction = decimal.NewFromInt(s.ExecutedVolume).
			DivRound(decimal.NewFromInt(s.TotalVolume), 4)
	}
	return s
}

// Report renders the summary for operators.
func (s Summary) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order summary for %s@%s (%s)\n", s.Account, s.Broker, s.Day)
	fmt.Fprintf(&b, "  orders:   %d (buy %d, sell %d, done %d)\n", s.Orders, s.BuyOrders, s.SellOrders, s.DoneOrders)
	fmt.Fprintf(&b, "  volume:   %d total, %d executed, %d remaining\n", s.TotalVolume, s.ExecutedVolume, s.RemainedVolume)
	fmt.Fprintf(&b, "  executed: %s%%\n", s.ExecutedFraction.Mul(decimal.NewFromInt(100)).StringFixed(2))
	fmt.Fprintf(&b, "  amount:   %d\n", s.TotalAmount)
	return b.String()
}
