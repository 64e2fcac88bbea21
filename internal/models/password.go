package models

import "unicode"

// PasswordStrength scores a password 0-4: length, lowercase+uppercase mix,
// digits, and symbols each add a point once the minimum length is met.
// Anything under 8 characters scores 0.
func PasswordStrength(pw string) int {
	if len(pw) < 8 {
		return 0
	}
	var lower, upper, digit, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}
	score := 1
	if lower && upper {
		score++
	}
	if digit {
		score++
	}
	if symbol {
		score++
	}
	return score
}

// PasswordStrengthLabel maps a strength score to a display label.
func PasswordStrengthLabel(score int) string {
	switch {
	case score <= 0:
		return "too short"
	case score == 1:
		return "weak"
	case score == 2:
		return "fair"
	case score == 3:
		return "good"
	default:
		return "strong"
	}
}
