package resolver

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/eflow-agent/server/internal/everflow"
)

// Kind is an entity type the resolver understands.
type Kind string

const (
	KindAffiliate Kind = "affiliate"
	KindOffer     Kind = "offer"
	KindCountry   Kind = "country"
)

// Kinds lists every supported kind.
var Kinds = []Kind{KindAffiliate, KindOffer, KindCountry}

func ParseKind(s string) (Kind, bool) {
	k := Kind(NormalizeTerm(s))
	return k, k.Valid()
}

func (k Kind) Valid() bool {
	switch k {
	case KindAffiliate, KindOffer, KindCountry:
		return true
	}
	return false
}

// maxRung is how far down the ladder a kind may go. Country names share
// leading words ("United States", "United Kingdom") so they stop at containment.
func (k Kind) maxRung() Rung {
	switch k {
	case KindOffer:
		return RungFirstWord
	case KindAffiliate:
		return RungTokens
	default:
		return RungContains
	}
}

// passThrough returns value as an identifier when it already has the kind's
// native identifier type.
func (k Kind) passThrough(value any) (string, bool) {
	if k == KindCountry {
		s, ok := value.(string)
		if ok && isCountryCode(s) {
			return s, true
		}
		return "", false
	}
	return numericID(value)
}

func isCountryCode(s string) bool {
	if s == "" || utf8.RuneCountInString(s) > 3 {
		return false
	}
	hasUpper := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			hasUpper = true
		}
	}
	return hasUpper
}

func numericID(value any) (string, bool) {
	switch v := value.(type) {
	case int:
		return strconv.FormatInt(int64(v), 10), true
	case int8:
		return strconv.FormatInt(int64(v), 10), true
	case int16:
		return strconv.FormatInt(int64(v), 10), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case uint:
		return strconv.FormatUint(uint64(v), 10), true
	case uint8:
		return strconv.FormatUint(uint64(v), 10), true
	case uint16:
		return strconv.FormatUint(uint64(v), 10), true
	case uint32:
		return strconv.FormatUint(uint64(v), 10), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	case float32:
		return integralFloat(float64(v))
	case float64:
		return integralFloat(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return strconv.FormatInt(n, 10), true
		}
		if f, err := v.Float64(); err == nil {
			return integralFloat(f)
		}
	}
	return "", false
}

func integralFloat(f float64) (string, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return "", false
	}
	return strconv.FormatInt(int64(f), 10), true
}

// termOf renders a non-identifier value as a search term.
func termOf(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func affiliateEntities(affs []everflow.Affiliate) []Entity {
	out := make([]Entity, 0, len(affs))
	for _, a := range affs {
		out = append(out, Entity{ID: strconv.FormatInt(a.ID, 10), Names: nonEmpty(a.Name)})
	}
	return out
}

func offerEntities(offers []everflow.Offer) []Entity {
	out := make([]Entity, 0, len(offers))
	for _, o := range offers {
		out = append(out, Entity{ID: strconv.FormatInt(o.ID, 10), Names: nonEmpty(o.Name, o.AdvertiserName, o.Advertiser)})
	}
	return out
}

func countryEntities(countries []everflow.Country) []Entity {
	out := make([]Entity, 0, len(countries))
	for _, c := range countries {
		out = append(out, Entity{ID: c.Code, Names: nonEmpty(append([]string{c.Name}, c.Aliases...)...)})
	}
	return out
}

func nonEmpty(names ...string) []string {
	out := names[:0:0]
	for _, n := range names {
		if strings.TrimSpace(n) != "" {
			out = append(out, n)
		}
	}
	return out
}
