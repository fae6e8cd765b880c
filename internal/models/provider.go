package models

import "github.com/cockroachdb/errors"

// Provider is the external data source a queue item retrieves from.
type Provider string

const (
	ProviderQualitas Provider = "Qualitas"
	ProviderHDI      Provider = "HDI"
	ProviderChubb    Provider = "Chubb"
)

// AllProviders returns the fixed set of supported providers.
func AllProviders() []Provider {
	return []Provider{ProviderQualitas, ProviderHDI, ProviderChubb}
}

func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderQualitas, ProviderHDI, ProviderChubb:
		return Provider(s), nil
	default:
		return "", errors.Newf("unknown provider: %q", s)
	}
}
