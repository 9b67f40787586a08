package fees

import "testing"

func TestCompute(t *testing.T) {
	tests := []struct {
		name            string
		price           int64
		royaltyPercent  float64
		platformPercent float64
		want            Breakdown
	}{
		{
			name:            "reference split",
			price:           1000,
			royaltyPercent:  10,
			platformPercent: 2.5,
			want:            Breakdown{PlatformFee: 25, RoyaltyFee: 100, SellerAmount: 875, TotalFees: 125},
		},
		{
			name:            "zero royalty",
			price:           1000,
			royaltyPercent:  0,
			platformPercent: 2.5,
			want:            Breakdown{PlatformFee: 25, RoyaltyFee: 0, SellerAmount: 975, TotalFees: 25},
		},
		{
			name:            "fractional fees floored",
			price:           999,
			royaltyPercent:  10,
			platformPercent: 2.5,
			// 999*0.025 = 24.975 -> 24, 999*0.10 = 99.9 -> 99
			want: Breakdown{PlatformFee: 24, RoyaltyFee: 99, SellerAmount: 876, TotalFees: 123},
		},
		{
			name:            "tiny price floors to zero fees",
			price:           3,
			royaltyPercent:  5,
			platformPercent: 2.5,
			want:            Breakdown{PlatformFee: 0, RoyaltyFee: 0, SellerAmount: 3, TotalFees: 0},
		},
		{
			name:            "zero price",
			price:           0,
			royaltyPercent:  10,
			platformPercent: 2.5,
			want:            Breakdown{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(tt.price, tt.royaltyPercent, tt.platformPercent)
			if got != tt.want {
				t.Errorf("Compute(%d, %v, %v) = %+v, want %+v",
					tt.price, tt.royaltyPercent, tt.platformPercent, got, tt.want)
			}
		})
	}
}

func TestComputeSumsToPrice(t *testing.T) {
	for price := int64(1); price < 5000; price += 7 {
		b := Compute(price, 7.3, 2.5)
		if b.PlatformFee+b.RoyaltyFee+b.SellerAmount != price {
			t.Fatalf("split of %d does not sum to price: %+v", price, b)
		}
		if b.TotalFees != b.PlatformFee+b.RoyaltyFee {
			t.Fatalf("total fees mismatch for %d: %+v", price, b)
		}
		if b.SellerAmount < 0 {
			t.Fatalf("negative seller amount for %d: %+v", price, b)
		}
	}
}
