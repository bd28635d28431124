package utils

import "unicode/utf16"

// gsm7 holds the GSM 03.38 basic character set. Extension table characters
// count as two septets.
const gsm7 = "@£$¥èéùìòÇ\nØø\rÅåΔ_ΦΓΛΩΠΨΣΘΞÆæßÉ !\"#¤%&'()*+,-./0123456789:;<=>?" +
	"¡ABCDEFGHIJKLMNOPQRSTUVWXYZÄÖÑÜ§¿abcdefghijklmnopqrstuvwxyzäöñüà"

const gsm7Extended = "^{}\\[~]|€\f"

// SMSSegments returns how many billable parts a message occupies.
func SMSSegments(message string) int {
	if message == "" {
		return 0
	}

	septets := 0
	unicode := false
	for _, r := range message {
		switch {
		case containsRune(gsm7, r):
			septets++
		case containsRune(gsm7Extended, r):
			septets += 2
		default:
			unicode = true
		}
		if unicode {
			break
		}
	}

	if unicode {
		units := ucs2Units(message)
		if units <= 70 {
			return 1
		}
		return (units + 66) / 67
	}

	if septets <= 160 {
		return 1
	}
	return (septets + 152) / 153
}

// ucs2Units counts UTF-16 code units; characters outside the BMP take two
func ucs2Units(message string) int {
	units := 0
	for _, r := range message {
		n := utf16.RuneLen(r)
		if n < 1 {
			n = 1
		}
		units += n
	}
	return units
}

func containsRune(set string, r rune) bool {
	for _, c := range set {
		if c == r {
			return true
		}
	}
	return false
}
