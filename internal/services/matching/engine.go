// Package matching reconciles an agent's ledger rows against the rows
// retrieved from a provider. Reconcile is a pure function: grouping,
// matching and classification never touch I/O.
package matching

import "strings"

// TolerancePercent is the allowed relative difference between two commission
// totals that are still considered the same amount.
const TolerancePercent = 2.0

// Classification labels. The currency label is appended at classification
// time.
const (
	StatusCorrectAmount        = "Correct amount"
	StatusIncorrectAmounts     = "Incorrect amounts"
	StatusDifferentEndorsement = "Different endorsement"
	StatusMissingInLedger      = "Not found in agent ledger"
	StatusMissingAtProvider    = "Not found at provider"
)

// Aggregate is one group of rows sharing a primary key, with its accumulated
// commission total. GrossAmount carries the premium total for reporting; it
// plays no part in matching.
type Aggregate struct {
	PrimaryKey   string  `json:"primary_key"`
	SecondaryKey string  `json:"secondary_key"`
	Document     string  `json:"document"`
	Endorsement  string  `json:"endorsement"`
	Series       string  `json:"series,omitempty"`
	Period       string  `json:"period,omitempty"`
	Currency     string  `json:"currency,omitempty"`
	Agent        string  `json:"agent,omitempty"`
	Amount       float64 `json:"amount"`
	GrossAmount  float64 `json:"gross_amount,omitempty"`
	Rows         int     `json:"rows"`
}

// Entry is one classified reconciliation result: a source aggregate, an
// external aggregate, or a matched pair.
type Entry struct {
	Source   *Aggregate `json:"source,omitempty"`
	External *Aggregate `json:"external,omitempty"`
	Status   string     `json:"status"`
}

// Reconcile groups both row sets, matches external aggregates against source
// aggregates and classifies every resulting pair. Matching tries exact
// primary-key equality first, then falls back to secondary-key equality
// combined with amount tolerance; the first unclaimed candidate wins.
func Reconcile(profile *Profile, source []SourceRow, external []ExternalRow) []Entry {
	srcAggs := groupSource(profile, source)
	extAggs := groupExternal(profile, external)

	entries := make([]Entry, 0, len(srcAggs)+len(extAggs))
	for _, agg := range srcAggs {
		entries = append(entries, Entry{Source: agg})
	}

	var unmatched []Entry
	for _, ext := range extAggs {
		idx := -1
		for i := range entries {
			s := entries[i].Source
			if s == nil || entries[i].External != nil {
				continue
			}
			if s.PrimaryKey == ext.PrimaryKey ||
				(s.SecondaryKey == ext.SecondaryKey && IsTolerable(ext.Amount, s.Amount, TolerancePercent)) {
				idx = i
				break
			}
		}
		if idx >= 0 {
			entries[idx].External = ext
		} else {
			unmatched = append(unmatched, Entry{External: ext})
		}
	}
	entries = append(entries, unmatched...)

	for i := range entries {
		entries[i].Status = classify(profile, entries[i])
	}
	return entries
}

func classify(profile *Profile, e Entry) string {
	currency := profile.DomesticCurrency
	if e.Source != nil && isForeignCurrency(e.Source.Currency) {
		currency = profile.ForeignCurrency
	}

	switch {
	case e.Source == nil:
		return StatusMissingInLedger + " " + currency
	case e.External == nil:
		return StatusMissingAtProvider + " " + currency
	case !profile.endorsementsEqual(e.Source.Endorsement, e.External.Endorsement):
		return StatusDifferentEndorsement + " " + currency
	case e.External.Amount == e.Source.Amount || IsTolerable(e.External.Amount, e.Source.Amount, TolerancePercent):
		return StatusCorrectAmount + " " + currency
	default:
		return StatusIncorrectAmounts + " " + currency
	}
}

func isForeignCurrency(currency string) bool {
	c := strings.ToLower(currency)
	return strings.Contains(c, "dólar") || strings.Contains(c, "dolar") || strings.Contains(c, "usd")
}

func groupSource(profile *Profile, rows []SourceRow) []*Aggregate {
	byKey := make(map[string]*Aggregate)
	var ordered []*Aggregate
	for _, row := range rows {
		primary, secondary := profile.SourceKeys(row)
		if profile.isSentinel(primary) {
			continue
		}
		agg, ok := byKey[primary]
		if !ok {
			agg = &Aggregate{
				PrimaryKey:   primary,
				SecondaryKey: secondary,
				Document:     row.Document,
				Endorsement:  row.Endorsement,
				Series:       row.Series,
				Period:       row.Period,
				Currency:     row.Currency,
				Agent:        row.Agent,
				GrossAmount:  row.NetPremium,
			}
			byKey[primary] = agg
			ordered = append(ordered, agg)
		}
		agg.Amount = round2(agg.Amount + profile.SourceAmount(row))
		agg.Rows++
	}
	return ordered
}

func groupExternal(profile *Profile, rows []ExternalRow) []*Aggregate {
	byKey := make(map[string]*Aggregate)
	var ordered []*Aggregate
	for _, row := range rows {
		primary, secondary := profile.ExternalKeys(row)
		if profile.isSentinel(primary) {
			continue
		}
		agg, ok := byKey[primary]
		if !ok {
			agg = &Aggregate{
				PrimaryKey:   primary,
				SecondaryKey: secondary,
				Document:     row.Policy,
				Endorsement:  row.Endorsement,
				Series:       row.Series,
				Period:       row.Period,
				Currency:     row.Currency,
				Agent:        row.Agent,
			}
			byKey[primary] = agg
			ordered = append(ordered, agg)
		}
		agg.Amount = round2(agg.Amount + profile.ExternalAmount(row))
		agg.GrossAmount = round2(agg.GrossAmount + row.Amount)
		agg.Rows++
	}
	return ordered
}
