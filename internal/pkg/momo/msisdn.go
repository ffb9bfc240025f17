package momo

import (
	"fmt"
	"strings"
)

const ugandaCountryCode = "256"

// Subscriber prefixes per network (Ugandan numbering plan, without the
// leading zero).
var (
	mtnPrefixes    = []string{"76", "77", "78"}
	airtelPrefixes = []string{"70", "74", "75"}
)

// nationalNumber reduces any accepted input form (+2567..., 2567..., 07...,
// 7...) to the 9-digit national significant number.
func nationalNumber(phone string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, strings.TrimPrefix(strings.TrimSpace(phone), "+"))

	switch {
	case strings.HasPrefix(digits, ugandaCountryCode) && len(digits) == 12:
		digits = digits[len(ugandaCountryCode):]
	case strings.HasPrefix(digits, "0") && len(digits) == 10:
		digits = digits[1:]
	}

	if len(digits) != 9 {
		return "", fmt.Errorf("invalid phone number %q", phone)
	}
	return digits, nil
}

func hasAnyPrefix(national string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(national, p) {
			return true
		}
	}
	return false
}

// NormalizeMTN converts a phone number to the full international MSISDN that
// the MTN MoMo API expects, digits only and without a plus: 2567XXXXXXXX.
func NormalizeMTN(phone string) (string, error) {
	national, err := nationalNumber(phone)
	if err != nil {
		return "", err
	}
	if !hasAnyPrefix(national, mtnPrefixes) {
		return "", fmt.Errorf("phone number %q is not on the MTN network", phone)
	}
	return ugandaCountryCode + national, nil
}

// Normalize converts a phone number to the wire format of the given network.
func Normalize(provider Provider, phone string) (string, error) {
	switch provider {
	case ProviderMTN:
		return NormalizeMTN(phone)
	case ProviderAirtel:
		return NormalizeAirtel(phone)
	}
	return "", fmt.Errorf("unknown mobile money provider %q", provider)
}

// NormalizeAirtel converts a phone number to the national format the Airtel
// Money API expects: no country code and no leading zero, 7XXXXXXXX.
func NormalizeAirtel(phone string) (string, error) {
	national, err := nationalNumber(phone)
	if err != nil {
		return "", err
	}
	if !hasAnyPrefix(national, airtelPrefixes) {
		return "", fmt.Errorf("phone number %q is not on the Airtel network", phone)
	}
	return national, nil
}
