package matching

import "github.com/cockroachdb/errors"

// Profile carries the per-provider rules the matcher needs: how grouping
// keys are built on each side, how a row contributes to the commission
// total, which aggregate keys are sentinels for "no real key", and how
// currencies are labeled.
type Profile struct {
	Name             string
	DomesticCurrency string
	ForeignCurrency  string

	// Sentinels lists primary keys representing rows without a real
	// document key. Aggregates under these keys are excluded from
	// matching on both sides.
	Sentinels []string

	NormalizeEndorsement EndorsementNormalizer

	// EndorsementsEqual decides the "Different endorsement" check after
	// normalization. Nil means strict string equality.
	EndorsementsEqual func(source, external string) bool

	sourceDocument func(string) string
	sourceAmount   func(r SourceRow) float64
	externalKeys   func(p *Profile, r ExternalRow) (primary, secondary string)
	externalAmount func(r ExternalRow) float64
}

// SourceKeys builds the primary and secondary grouping keys for a ledger row.
// The primary key is document-endorsement-series, the secondary drops the
// endorsement and keeps a trailing separator.
func (p *Profile) SourceKeys(r SourceRow) (primary, secondary string) {
	doc := p.sourceDocument(r.Document)
	series := NormalizeSeries(r.Series)
	primary = doc + "-" + p.NormalizeEndorsement(r.Endorsement) + "-" + series
	secondary = doc + "-" + series + "-"
	return primary, secondary
}

// ExternalKeys builds the grouping keys for a provider row.
func (p *Profile) ExternalKeys(r ExternalRow) (primary, secondary string) {
	return p.externalKeys(p, r)
}

// SourceAmount is a ledger row's contribution to the aggregate commission
// total.
func (p *Profile) SourceAmount(r SourceRow) float64 {
	return p.sourceAmount(r)
}

// ExternalAmount is a provider row's contribution to the aggregate commission
// total.
func (p *Profile) ExternalAmount(r ExternalRow) float64 {
	return p.externalAmount(r)
}

func (p *Profile) endorsementsEqual(source, external string) bool {
	a := p.NormalizeEndorsement(source)
	b := p.NormalizeEndorsement(external)
	if p.EndorsementsEqual != nil {
		return p.EndorsementsEqual(a, b)
	}
	return a == b
}

func (p *Profile) isSentinel(key string) bool {
	for _, s := range p.Sentinels {
		if key == s {
			return true
		}
	}
	return false
}

func seriesKeys(p *Profile, doc string, r ExternalRow) (string, string) {
	series := NormalizeSeries(r.Series)
	primary := doc + "-" + p.NormalizeEndorsement(r.Endorsement) + "-" + series
	secondary := doc + "-" + series + "-"
	return primary, secondary
}

// ProfileFor returns the matching profile for a provider name.
func ProfileFor(provider string) (*Profile, error) {
	p, ok := profiles[provider]
	if !ok {
		return nil, errors.Newf("no matching profile for provider %q", provider)
	}
	return p, nil
}

var profiles = map[string]*Profile{
	"Qualitas": {
		Name:                 "Qualitas",
		DomesticCurrency:     "MXN",
		ForeignCurrency:      "USD",
		Sentinels:            []string{"0000000000-0-N/A", "N/A-0-N/A"},
		NormalizeEndorsement: NormalizeEndorsement,
		sourceDocument:       DashedDocumentSegment,
		sourceAmount:         func(r SourceRow) float64 { return r.Amount },
		externalKeys: func(p *Profile, r ExternalRow) (string, string) {
			return seriesKeys(p, NormalizeDocument(r.Policy), r)
		},
		externalAmount: func(r ExternalRow) float64 { return r.Commission },
	},
	"HDI": {
		Name:                 "HDI",
		DomesticCurrency:     "MXN",
		ForeignCurrency:      "USD",
		Sentinels:            []string{"0-0-N/A", "N/A-0-N/A"},
		NormalizeEndorsement: NormalizeEndorsement,
		sourceDocument:       NumericDocumentSegment,
		sourceAmount:         func(r SourceRow) float64 { return r.Amount },
		externalKeys: func(p *Profile, r ExternalRow) (string, string) {
			return seriesKeys(p, NumericDocumentSegment(r.Policy), r)
		},
		// HDI reports charges as separate rows that net against the
		// accumulated commission.
		externalAmount: func(r ExternalRow) float64 { return r.Commission - r.Charge },
	},
	"Chubb": {
		Name:                 "Chubb",
		DomesticCurrency:     "MXN",
		ForeignCurrency:      "USD to MXN",
		Sentinels:            []string{"N/A-0-N/A"},
		NormalizeEndorsement: NormalizeEndorsement,
		EndorsementsEqual:    numericallyEqual,
		sourceDocument:       NormalizeDocument,
		// Chubb ledger rows always carry the MXN conversion; the statement
		// side is MXN-denominated, so dollar policies must compare on the
		// converted amount.
		sourceAmount: func(r SourceRow) float64 { return r.AmountMXN },
		// Chubb statements carry the period in the receipt column and
		// prefix policies with a class key.
		externalKeys: func(p *Profile, r ExternalRow) (string, string) {
			doc := ClassPrefix(r.ClassKey) + NormalizeDocument(r.Policy)
			primary := doc + "-" + p.NormalizeEndorsement(r.Endorsement) + "-" + r.Receipt
			secondary := doc + "-" + r.Receipt + "-"
			return primary, secondary
		},
		externalAmount: func(r ExternalRow) float64 {
			return r.Commission + r.Surcharge + r.ExtraCommission
		},
	},
}
