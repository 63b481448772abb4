package services

// PaymentChannel describes one entry in the payment method catalog
// shown at checkout. The ids double as the accepted values for
// Pay's method field.
type PaymentChannel struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Logo    string `json:"logo"`
	Popular bool   `json:"popular,omitempty"`
}

type PaymentMethodCatalog struct {
	VirtualAccount []PaymentChannel `json:"virtualAccount"`
	EWallet        []PaymentChannel `json:"ewallet"`
	Balance        []PaymentChannel `json:"balance"`
}

// PaymentMethods returns the static channel catalog. Virtual account
// and e-wallet channels route through the gateway; the balance channel
// settles against the stored-value wallet directly.
func PaymentMethods() PaymentMethodCatalog {
	return PaymentMethodCatalog{
		VirtualAccount: []PaymentChannel{
			{ID: "BCA", Name: "BCA", Logo: "/payments/bca-icon.svg", Popular: true},
			{ID: "MANDIRI", Name: "Mandiri", Logo: "/payments/mandiri-icon.svg"},
			{ID: "BNI", Name: "BNI", Logo: "/payments/bni-icon.svg"},
			{ID: "BRI", Name: "BRI", Logo: "/payments/bri-icon.svg"},
		},
		EWallet: []PaymentChannel{
			{ID: "DANA", Name: "DANA", Logo: "/payments/dana-icon.svg"},
			{ID: "OVO", Name: "OVO", Logo: "/payments/ovo-icon.svg"},
			{ID: "SHOPEEPAY", Name: "ShopeePay", Logo: "/payments/shopeepay-icon.svg"},
		},
		Balance: []PaymentChannel{
			{ID: ChannelBalance, Name: "Store Balance", Logo: "/payments/balance-icon.svg"},
		},
	}
}
