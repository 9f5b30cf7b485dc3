package intent

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"satya/go-core/internal/vaulterr"
)

const DefaultCurrency = "INR"

var ErrParse = errors.New("not a valid upi payment url")

var (
	amountPattern   = regexp.MustCompile(`^[0-9]+(\.[0-9]{1,2})?$`)
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
)

// ParsedIntent is the structured content of a upi://pay link.
type ParsedIntent struct {
	VPA      string `json:"vpa"`
	Name     string `json:"name"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// ParseUPI extracts payee, name, amount and currency from a upi://pay link.
// Query values are percent-decoded; a missing currency means INR.
func ParseUPI(raw string) (ParsedIntent, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ParsedIntent{}, parseError("malformed url")
	}
	if u.Scheme != "upi" || !strings.EqualFold(u.Host, "pay") || (u.Path != "" && u.Path != "/") {
		return ParsedIntent{}, parseError("expected upi://pay")
	}
	q, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return ParsedIntent{}, parseError("malformed query")
	}

	out := ParsedIntent{
		VPA:      strings.TrimSpace(q.Get("pa")),
		Name:     strings.TrimSpace(q.Get("pn")),
		Amount:   strings.TrimSpace(q.Get("am")),
		Currency: strings.ToUpper(strings.TrimSpace(q.Get("cu"))),
	}
	for _, v := range []string{out.VPA, out.Name, out.Amount, out.Currency} {
		if !utf8.ValidString(v) {
			return ParsedIntent{}, parseError("query value is not valid utf-8")
		}
	}
	if out.VPA == "" {
		return ParsedIntent{}, parseError("missing payee address")
	}
	if !strings.Contains(out.VPA, "@") || strings.ContainsAny(out.VPA, " \t\r\n") {
		return ParsedIntent{}, parseError("invalid payee address")
	}
	if out.Amount != "" && !amountPattern.MatchString(out.Amount) {
		return ParsedIntent{}, parseError("invalid amount")
	}
	if out.Currency == "" {
		out.Currency = DefaultCurrency
	}
	if !currencyPattern.MatchString(out.Currency) {
		return ParsedIntent{}, parseError("invalid currency")
	}
	return out, nil
}

func parseError(reason string) error {
	return vaulterr.New(vaulterr.KindInvalidInput, "intent.parse", fmt.Errorf("%w: %s", ErrParse, reason))
}
