package rewards

// Tier is one entry of the redemption catalog. Amounts are minor currency units.
type Tier struct {
	Key           string `json:"key"`
	Cost          int    `json:"cost"`
	AmountOff     int64  `json:"amount_off"`
	MinimumAmount int64  `json:"minimum_amount"`
	Label         string `json:"label"`
}

var Tiers = []Tier{
	{Key: "bronze", Cost: 200, AmountOff: 500, MinimumAmount: 3000, Label: "5 € off orders over 30 €"},
	{Key: "silver", Cost: 400, AmountOff: 1200, MinimumAmount: 5000, Label: "12 € off orders over 50 €"},
	{Key: "gold", Cost: 700, AmountOff: 2500, MinimumAmount: 8000, Label: "25 € off orders over 80 €"},
}

func Lookup(key string) (Tier, bool) {
	for _, t := range Tiers {
		if t.Key == key {
			return t, true
		}
	}
	return Tier{}, false
}
