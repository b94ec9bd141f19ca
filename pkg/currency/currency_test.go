package currency

import "testing"

func TestCurrencyOf(t *testing.T) {
	tests := []struct {
		code string
		want string
		ok   bool
	}{
		{"KE", "KES", true},
		{"ug", "UGX", true},
		{"NG", "NGN", true},
		{"TZ", "TZS", true},
		{"GH", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := CurrencyOf(tt.code)
		if got != tt.want || ok != tt.ok {
			t.Errorf("CurrencyOf(%q) = %q, %v; want %q, %v", tt.code, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSplitPhone(t *testing.T) {
	tests := []struct {
		phone   string
		country string
		local   string
		ok      bool
	}{
		{"+254712345678", "KE", "712345678", true},
		{"+254 712 345 678", "KE", "712345678", true},
		{"00256701234567", "UG", "701234567", true},
		{"+2348012345678", "NG", "8012345678", true},
		{"0712345678", "", "0712345678", false},
		{"+1555123456", "", "+1555123456", false},
	}

	for _, tt := range tests {
		c, local, ok := SplitPhone(tt.phone)
		if ok != tt.ok || c.Code != tt.country || local != tt.local {
			t.Errorf("SplitPhone(%q) = %q, %q, %v; want %q, %q, %v", tt.phone, c.Code, local, ok, tt.country, tt.local, tt.ok)
		}
	}
}

func TestJoinPhone(t *testing.T) {
	tests := []struct {
		dial  string
		local string
		want  string
	}{
		{"+254", "712345678", "+254712345678"},
		{"+254", "0712 345 678", "+254712345678"},
		{"256", "701234567", "+256701234567"},
	}

	for _, tt := range tests {
		if got := JoinPhone(tt.dial, tt.local); got != tt.want {
			t.Errorf("JoinPhone(%q, %q) = %q, want %q", tt.dial, tt.local, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		phone   string
		country string
		want    string
	}{
		{"0712345678", "KE", "+254712345678"},
		{"254712345678", "KE", "+254712345678"},
		{"+254712345678", "UG", "+254712345678"},
		{"0712-345-678", "KE", "+254712345678"},
		{"701234567", "UG", "+256701234567"},
		{"0712345678", "XX", "0712345678"},
	}

	for _, tt := range tests {
		if got := Normalize(tt.phone, tt.country); got != tt.want {
			t.Errorf("Normalize(%q, %q) = %q, want %q", tt.phone, tt.country, got, tt.want)
		}
	}
}

func TestParseNetwork(t *testing.T) {
	for _, in := range []string{"mpesa", "MTN", " Airtel ", "VODAFONE"} {
		if _, ok := ParseNetwork(in); !ok {
			t.Errorf("ParseNetwork(%q) should be accepted", in)
		}
	}
	if _, ok := ParseNetwork("TIGO"); ok {
		t.Error("ParseNetwork(TIGO) should be rejected")
	}
}

func TestCountries_ReturnsCopy(t *testing.T) {
	cs := Countries()
	cs[0].Currency = "XXX"
	if c, _ := ByCode("KE"); c.Currency != "KES" {
		t.Error("Countries() should not expose the internal table")
	}
}
