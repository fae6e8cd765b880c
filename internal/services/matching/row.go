package matching

// SourceRow is one internally reported ledger row (the agent's own
// commission report) as uploaded at job submission.
type SourceRow struct {
	Agent       string  `json:"agent"`
	Company     string  `json:"company,omitempty"`
	FullName    string  `json:"full_name,omitempty"`
	Executive   string  `json:"executive,omitempty"`
	Office      string  `json:"office,omitempty"`
	Document    string  `json:"document"`
	Endorsement string  `json:"endorsement"`
	Series      string  `json:"series"`
	Period      string  `json:"period"`
	Currency    string  `json:"currency"`
	Amount      float64 `json:"amount"`
	AmountMXN   float64 `json:"amount_mxn,omitempty"`
	NetPremium  float64 `json:"net_premium,omitempty"`
}

// ExternalRow is one row retrieved from a provider, parsed out of the raw
// export files the retrieval adapter deposits. Not every provider fills
// every field: Receipt carries the period for Chubb, Charge only appears in
// HDI exports, Surcharge and ExtraCommission only in Chubb exports.
type ExternalRow struct {
	Day             string  `json:"day,omitempty"`
	Policy          string  `json:"policy"`
	Endorsement     string  `json:"endorsement"`
	Receipt         string  `json:"receipt,omitempty"`
	Series          string  `json:"series,omitempty"`
	Period          string  `json:"period,omitempty"`
	Agent           string  `json:"agent,omitempty"`
	Branch          string  `json:"branch,omitempty"`
	ClassKey        string  `json:"class_key,omitempty"`
	Concept         string  `json:"concept,omitempty"`
	Currency        string  `json:"currency,omitempty"`
	Amount          float64 `json:"amount"`
	Commission      float64 `json:"commission"`
	Charge          float64 `json:"charge,omitempty"`
	Surcharge       float64 `json:"surcharge,omitempty"`
	ExtraCommission float64 `json:"extra_commission,omitempty"`
}
