package phone

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0712345678", "254712345678"},
		{"+254712345678", "254712345678"},
		{"254712345678", "254712345678"},
		{"712345678", "254712345678"},
		{"0110000000", "254110000000"},
		{"+254 712 345 678", "254712345678"},
		{"0712-345-678", "254712345678"},
	}
	for _, c := range cases {
		got, err := Normalize(c.in)
		if err != nil {
			t.Errorf("Normalize(%q) returned error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeCanonicalForms(t *testing.T) {
	// All accepted spellings of the same number collapse to one form.
	want := "254712345678"
	for _, in := range []string{"0712345678", "+254712345678", "254712345678"} {
		got, err := Normalize(in)
		if err != nil || got != want {
			t.Fatalf("Normalize(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
}

func TestNormalizeRejects(t *testing.T) {
	for _, in := range []string{
		"",
		"abc123",
		"071234567",      // too short
		"07123456789",    // too long
		"0812345678",     // not a mobile prefix
		"255712345678",   // wrong country code
		"25471234567890", // too long international
	} {
		if got, err := Normalize(in); err == nil {
			t.Errorf("Normalize(%q) = %q, want error", in, got)
		}
	}
}
