// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from strings
// into integer minor units of a given currency.
package core

import (
	"strconv"
	"strings"
	"unicode"
)

// ParseMinor converts a decimal string to minor units of cur with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and an
// optional leading sign, since opening balances may be overdrawn. Digits past
// the currency's fraction are rounded half away from zero.
//
// Examples:
//
//	ParseMinor("12.34", USD) -> 1234, nil
//	ParseMinor("12,345", USD) -> 1235, nil
//	ParseMinor("-0.5", ILS) -> -50, nil
func ParseMinor(s string, cur Currency) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" && fracPart == "" {
		return 0, ErrInvalidAmount
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}

	digits := cur.Fraction()
	scale := int64(1)
	for i := 0; i < digits; i++ {
		scale *= 10
	}

	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	// Prevent overflow when scaling to minor units
	if iv > (1<<63-1)/scale-1 {
		return 0, ErrInvalidAmount
	}

	var frac int64
	for i := 0; i < digits; i++ {
		frac *= 10
		if i < len(fracPart) {
			frac += int64(fracPart[i] - '0')
		}
	}
	if len(fracPart) > digits && fracPart[digits] >= '5' {
		frac++
	}

	minor := iv*scale + frac
	if neg {
		minor = -minor
	}
	return minor, nil
}
