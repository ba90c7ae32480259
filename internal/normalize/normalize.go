package normalize

import (
	"errors"
	"strconv"
	"strings"

	"halcon/internal/domain"
)

// DetailHost prefixes relative listing URLs scraped from result pages
const DetailHost = "https://articulo.mercadolibre.com.co"

var ErrUnparsablePrice = errors.New("price text contains no digits")

// Price parses a localized price string into a numeric amount. Colombian
// prices use the dot as a thousands separator and carry no decimals, so every
// non-digit character is stripped and the remaining digits are read as an
// integer ("1.850.000" -> 1850000). Input with no digits is a parse failure.
func Price(text string) (float64, error) {
	var digits strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0, ErrUnparsablePrice
	}

	value, err := strconv.ParseInt(digits.String(), 10, 64)
	if err != nil {
		return 0, ErrUnparsablePrice
	}
	return float64(value), nil
}

// AbsoluteURL rewrites a root-relative listing path to an absolute URL on the
// detail host. Already-absolute URLs pass through untouched.
func AbsoluteURL(raw string) string {
	if strings.HasPrefix(raw, "/") {
		return DetailHost + raw
	}
	return raw
}

// Condition maps a source condition value onto the canonical label set.
// The mapping is total: anything outside the known vocabulary becomes
// "No especificado".
func Condition(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "new", "nuevo":
		return domain.ConditionLabelNew
	case "used", "usado":
		return domain.ConditionLabelUsed
	default:
		return domain.ConditionLabelUnspecified
	}
}

// FreeShipping reports whether a shipping badge advertises free delivery.
// An absent badge (empty text) means no free shipping.
func FreeShipping(badgeText string) bool {
	return strings.Contains(strings.ToLower(badgeText), "gratis")
}

// UpscaleThumbnail swaps the low resolution image suffix the search API
// returns for the high resolution variant.
func UpscaleThumbnail(url string) string {
	return strings.Replace(url, "-I.jpg", "-O.jpg", 1)
}

// FormatCOP renders a price the way Colombian listings display it, with a
// dollar sign and dots as thousands separators ("$1.850.000").
func FormatCOP(price float64) string {
	digits := strconv.FormatInt(int64(price), 10)

	var out strings.Builder
	out.WriteByte('$')
	lead := len(digits) % 3
	if lead > 0 {
		out.WriteString(digits[:lead])
		if len(digits) > lead {
			out.WriteByte('.')
		}
	}
	for i := lead; i < len(digits); i += 3 {
		out.WriteString(digits[i : i+3])
		if i+3 < len(digits) {
			out.WriteByte('.')
		}
	}
	return out.String()
}

// Location joins city and state into a display string, falling back to the
// state alone when the city is missing.
func Location(city, state string) string {
	switch {
	case city != "" && state != "":
		return city + ", " + state
	case state != "":
		return state
	default:
		return ""
	}
}
