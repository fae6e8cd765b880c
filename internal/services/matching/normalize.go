package matching

import (
	"math"
	"strconv"
	"strings"
)

// MissingKey is the sentinel used wherever a key component cannot be derived.
const MissingKey = "N/A"

// NormalizeSeries takes the first numeric component of a "/"-separated
// series or period field. A missing or non-numeric first component yields
// the MissingKey sentinel.
func NormalizeSeries(series string) string {
	first := strings.TrimSpace(strings.Split(series, "/")[0])
	n, err := strconv.ParseFloat(first, 64)
	if err != nil || n == 0 {
		return MissingKey
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// NormalizeDocument passes the document number through, falling back to the
// MissingKey sentinel when it is empty.
func NormalizeDocument(doc string) string {
	if strings.TrimSpace(doc) == "" {
		return MissingKey
	}
	return doc
}

// DashedDocumentSegment extracts the segment after the first dash of a
// document number. Qualitas ledger documents come prefixed with the company
// key ("QUAL-12345678"); the provider side reports the bare number.
func DashedDocumentSegment(doc string) string {
	if doc == "" {
		return MissingKey
	}
	parts := strings.Split(doc, "-")
	if len(parts) > 1 {
		return parts[1]
	}
	return doc
}

// NumericDocumentSegment is the HDI variant: the dashed segment (or the whole
// document) is reduced to its numeric value so that zero-padded and plain
// renditions group together.
func NumericDocumentSegment(doc string) string {
	if strings.TrimSpace(doc) == "" {
		return MissingKey
	}
	candidate := doc
	if parts := strings.Split(doc, "-"); len(parts) > 1 {
		candidate = parts[1]
	}
	if n, err := strconv.ParseFloat(strings.TrimSpace(candidate), 64); err == nil {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return candidate
}

// EndorsementNormalizer rewrites an endorsement before keys are built and
// before endorsements are compared.
type EndorsementNormalizer func(string) string

// NormalizeEndorsement is the observed behavior: empty endorsements collapse
// to "0", everything else passes through untouched.
func NormalizeEndorsement(endorsement string) string {
	if strings.TrimSpace(endorsement) == "" {
		return "0"
	}
	return endorsement
}

// ClassPrefix turns a Chubb class key into a grouping prefix: trimmed and
// suffixed with a space, empty when absent.
func ClassPrefix(classKey string) string {
	classKey = strings.TrimSpace(classKey)
	if classKey == "" {
		return ""
	}
	return classKey + " "
}

// numericallyEqual treats endorsements as equal when their strings match or
// when both parse to the same number ("005" equals "5").
func numericallyEqual(a, b string) bool {
	if a == b {
		return true
	}
	na, errA := strconv.ParseFloat(strings.TrimSpace(a), 64)
	nb, errB := strconv.ParseFloat(strings.TrimSpace(b), 64)
	return errA == nil && errB == nil && na == nb
}

// IsTolerable reports whether two amounts differ by at most percent points,
// relative to the larger of the two. Symmetric in a and b.
func IsTolerable(a, b, percent float64) bool {
	diff := math.Abs(a - b)
	larger := a
	if b > a {
		larger = b
	}
	diffPercent := (100 / larger) * diff
	return math.Abs(diffPercent) <= percent
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
