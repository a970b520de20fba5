package prescreen

// BuiltinRules are the default screening checks loaded at startup.
// Deployments can replace them wholesale via ReloadRules.
func BuiltinRules() []Rule {
	return []Rule{
		{
			ID:         "high_amount",
			Expression: `amount >= 10000.0`,
			Signal:     "Amount exceeds high-value threshold",
			Enabled:    true,
		},
		{
			ID:         "crypto_high_value",
			Expression: `tx_type == "crypto" && amount >= 5000.0`,
			Signal:     "High-value crypto transaction",
			Enabled:    true,
		},
		{
			ID:         "cash_withdrawal_spike",
			Expression: `tx_type == "cash_withdrawal" && amount >= 3000.0`,
			Signal:     "Large cash withdrawal",
			Enabled:    true,
		},
		{
			ID:         "off_hours",
			Expression: `hour < 6 || hour >= 23`,
			Signal:     "Transaction outside normal hours",
			Enabled:    true,
		},
		{
			ID:         "rapid_velocity",
			Expression: `velocity_count >= 5`,
			Signal:     "Rapid transaction velocity",
			Enabled:    true,
		},
		{
			ID:         "risky_merchant",
			Expression: `merchant_category in ["gambling", "jewelry", "crypto_exchange", "wire_service"]`,
			Signal:     "High-risk merchant category",
			Enabled:    true,
		},
		{
			ID:         "structuring_band",
			Expression: `tx_type == "wire_transfer" && amount >= 9000.0 && amount < 10000.0`,
			Signal:     "Amount just below reporting threshold",
			Enabled:    true,
		},
	}
}
