// Package currency maps supported payout countries to their dial prefix and
// fiat currency and normalises mobile-money phone numbers.
package currency

import (
	"strings"
)

type Country struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	DialCode string `json:"dial_code"`
	Currency string `json:"currency"`
}

var countries = []Country{
	{Code: "KE", Name: "Kenya", DialCode: "+254", Currency: "KES"},
	{Code: "UG", Name: "Uganda", DialCode: "+256", Currency: "UGX"},
	{Code: "NG", Name: "Nigeria", DialCode: "+234", Currency: "NGN"},
	{Code: "TZ", Name: "Tanzania", DialCode: "+255", Currency: "TZS"},
}

// Network is a mobile-money operator accepted by wallet creation.
type Network string

const (
	NetworkMPesa    Network = "MPESA"
	NetworkMTN      Network = "MTN"
	NetworkAirtel   Network = "AIRTEL"
	NetworkVodafone Network = "VODAFONE"
)

var Networks = []Network{NetworkMPesa, NetworkMTN, NetworkAirtel, NetworkVodafone}

func ParseNetwork(s string) (Network, bool) {
	n := Network(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Networks {
		if n == known {
			return n, true
		}
	}
	return "", false
}

// Countries returns a copy of the supported country table.
func Countries() []Country {
	out := make([]Country, len(countries))
	copy(out, countries)
	return out
}

func ByCode(code string) (Country, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, c := range countries {
		if c.Code == code {
			return c, true
		}
	}
	return Country{}, false
}

// CurrencyOf returns the payout currency of a country code.
func CurrencyOf(code string) (string, bool) {
	c, ok := ByCode(code)
	if !ok {
		return "", false
	}
	return c.Currency, true
}

// StripSpaces removes every whitespace rune from a phone number.
func StripSpaces(phone string) string {
	return strings.Join(strings.Fields(phone), "")
}

// SplitPhone separates a full international number into the matching
// country and the local part. ok is false when no supported dial prefix
// matches.
func SplitPhone(phone string) (country Country, local string, ok bool) {
	phone = StripSpaces(phone)
	if strings.HasPrefix(phone, "00") {
		phone = "+" + phone[2:]
	}
	for _, c := range countries {
		if strings.HasPrefix(phone, c.DialCode) {
			return c, strings.TrimPrefix(phone, c.DialCode), true
		}
	}
	return Country{}, phone, false
}

// JoinPhone concatenates a dial prefix with a local number. A leading trunk
// zero on the local part is dropped.
func JoinPhone(dialCode, local string) string {
	local = strings.TrimLeft(StripSpaces(local), "0")
	if !strings.HasPrefix(dialCode, "+") {
		dialCode = "+" + dialCode
	}
	return dialCode + local
}

// HasDialPrefix reports whether local already starts with an international
// prefix.
func HasDialPrefix(local string) bool {
	local = StripSpaces(local)
	return strings.HasPrefix(local, "+") || strings.HasPrefix(local, "00")
}

// Normalize converts the common local spellings of a number into the
// international form for the given country, e.g. 0712345678 → +254712345678.
func Normalize(phone, countryCode string) string {
	phone = strings.ReplaceAll(StripSpaces(phone), "-", "")
	if _, _, ok := SplitPhone(phone); ok {
		if strings.HasPrefix(phone, "00") {
			return "+" + phone[2:]
		}
		return phone
	}

	c, ok := ByCode(countryCode)
	if !ok {
		return phone
	}

	bare := strings.TrimPrefix(c.DialCode, "+")
	switch {
	case strings.HasPrefix(phone, bare):
		return "+" + phone
	case strings.HasPrefix(phone, "0"):
		return c.DialCode + phone[1:]
	}
	return c.DialCode + phone
}
