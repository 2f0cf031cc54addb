// Package words spells integers in American English.
//
// Format is total over int64: the scale table runs through quintillion,
// which covers every chunk position an int64 can occupy.
package words

import (
	"strings"
)

var lowNames = [...]string{
	"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine",
	"ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen", "sixteen",
	"seventeen", "eighteen", "nineteen",
}

var tensNames = [...]string{
	"twenty", "thirty", "forty", "fifty", "sixty", "seventy", "eighty", "ninety",
}

// bigNames[t-1] labels the chunk at base-1000 position t.
var bigNames = [...]string{
	"thousand", "million", "billion", "trillion", "quadrillion", "quintillion",
}

// MaxScale is the highest base-1000 chunk position Format can label.
const MaxScale = len(bigNames)

// Format returns the word form of n, e.g. 1001 -> "one thousand, one".
func Format(n int64) string {
	if n < 0 {
		// -(n+1)+1 keeps math.MinInt64 representable
		return "minus " + formatMagnitude(uint64(-(n+1))+1)
	}
	return formatMagnitude(uint64(n))
}

func formatMagnitude(n uint64) string {
	if n <= 999 {
		return convert999(int(n))
	}

	// chunks are collected least-significant first
	parts := make([]string, 0, MaxScale+1)
	for t := 0; n > 0; t++ {
		chunk := int(n % 1000)
		n /= 1000
		if chunk == 0 {
			continue
		}
		s := convert999(chunk)
		if t > 0 {
			s += " " + bigNames[t-1]
		}
		parts = append(parts, s)
	}

	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ", ")
}

func convert999(n int) string {
	h, r := n/100, n%100
	if h == 0 {
		return convert99(r)
	}
	hundreds := lowNames[h] + " hundred"
	if r == 0 {
		return hundreds
	}
	return hundreds + " " + convert99(r)
}

func convert99(n int) string {
	if n < 20 {
		return lowNames[n]
	}
	s := tensNames[n/10-2]
	if n%10 == 0 {
		return s
	}
	return s + "-" + lowNames[n%10]
}
