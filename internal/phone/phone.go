// Package phone validates and canonicalizes Kenyan mobile numbers for
// use as M-Pesa MSISDNs.
package phone

import (
	"errors"
	"regexp"
	"strings"
)

var ErrInvalidPhone = errors.New("invalid phone number")

// Safaricom and Airtel mobile prefixes: 07XX and 01XX local forms.
var canonicalRe = regexp.MustCompile(`^254(7\d{8}|1\d{8})$`)

// Normalize converts a local (07XXXXXXXX / 01XXXXXXXX) or international
// (+2547..., 2547...) mobile number to the canonical 254XXXXXXXXX form
// the gateway expects. Whitespace and dashes are tolerated.
func Normalize(raw string) (string, error) {
	s := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, raw)

	s = strings.TrimPrefix(s, "+")

	switch {
	case strings.HasPrefix(s, "0") && len(s) == 10:
		s = "254" + s[1:]
	case strings.HasPrefix(s, "254"):
		// already international
	case strings.HasPrefix(s, "7") && len(s) == 9:
		s = "254" + s
	case strings.HasPrefix(s, "1") && len(s) == 9:
		s = "254" + s
	}

	if !canonicalRe.MatchString(s) {
		return "", ErrInvalidPhone
	}
	return s, nil
}
