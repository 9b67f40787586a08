// Package fees computes the platform/royalty fee split for a sale. The
// calculator is pure: given a price and the two percentages it always
// produces the same breakdown and touches nothing else.
package fees

import "math"

// DefaultPlatformPercent is the marketplace cut applied when the operator
// has not configured one.
const DefaultPlatformPercent = 2.5

// Breakdown is the fee split for a single sale. All amounts are integer
// minor units. Fees are floored, and SellerAmount is derived by
// subtraction so the three parts always sum exactly to the price.
type Breakdown struct {
	PlatformFee  int64
	RoyaltyFee   int64
	SellerAmount int64
	TotalFees    int64
}

// Compute splits price into platform fee, creator royalty, and seller
// proceeds. royaltyPercent is validated at listing-creation time (royalty
// plus platform percent must not exceed 100), not here.
func Compute(price int64, royaltyPercent, platformPercent float64) Breakdown {
	platform := floorPercent(price, platformPercent)
	royalty := floorPercent(price, royaltyPercent)

	return Breakdown{
		PlatformFee:  platform,
		RoyaltyFee:   royalty,
		SellerAmount: price - platform - royalty,
		TotalFees:    platform + royalty,
	}
}

func floorPercent(amount int64, pct float64) int64 {
	return int64(math.Floor(float64(amount) * pct / 100))
}
