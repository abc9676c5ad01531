// Package fees implements the fee and bond arithmetic frozen into each offer.
package fees

import (
	"math"

	"github.com/openpleb/escrowd/internal/errs"
)

// Params are the platform's configured fee and bond parameters. Flat values
// are integer sats, percentages are percent of the sats amount.
type Params struct {
	PlatformFeeFlatRate   int64
	PlatformFeePercentage float64
	TakerFeeFlatRate      int64
	TakerFeePercentage    float64
	BondFlatRate          int64
	BondPercentage        float64
	MaxFiatAmount         int64
}

// Quote is the result of a fee computation. All values are integer sats and
// copied verbatim into a new offer.
type Quote struct {
	SatsAmount            int64
	PlatformFeeFlatRate   int64
	PlatformFeePercentage int64
	TakerFeeFlatRate      int64
	TakerFeePercentage    int64
	BondFlatRate          int64
	BondPercentage        int64
}

// Total is the escrow amount a maker must fund.
func (q Quote) Total() int64 {
	return q.SatsAmount +
		q.PlatformFeeFlatRate + q.PlatformFeePercentage +
		q.TakerFeeFlatRate + q.TakerFeePercentage +
		q.BondFlatRate + q.BondPercentage
}

// Compute turns a fiat amount and a conversion rate (fiat units per BTC) into
// the sats amount and the offer's frozen fee/bond fields. Amounts round up so
// the platform never undercharges by a fraction of a sat.
func Compute(fiatAmount int64, conversionRate float64, p Params) (Quote, error) {
	if fiatAmount <= 0 || conversionRate <= 0 {
		return Quote{}, errs.ErrInvalidAmount
	}
	if p.MaxFiatAmount > 0 && fiatAmount > p.MaxFiatAmount {
		return Quote{}, errs.ErrAmountTooLarge
	}

	sats := int64(math.Ceil(1e8 / conversionRate * float64(fiatAmount)))

	return Quote{
		SatsAmount:            sats,
		PlatformFeeFlatRate:   p.PlatformFeeFlatRate,
		PlatformFeePercentage: pctFee(sats, p.PlatformFeePercentage),
		TakerFeeFlatRate:      p.TakerFeeFlatRate,
		TakerFeePercentage:    pctFee(sats, p.TakerFeePercentage),
		BondFlatRate:          p.BondFlatRate,
		BondPercentage:        pctFee(sats, p.BondPercentage),
	}, nil
}

func pctFee(sats int64, pct float64) int64 {
	if pct <= 0 {
		return 0
	}
	return int64(math.Ceil(float64(sats) * pct / 100))
}
