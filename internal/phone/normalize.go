// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package phone canonicalizes free-form Ukrainian phone numbers into the
// 12-digit form used as the equality key for ledger lookups.
package phone

import "strings"

const (
	// CountryCode is the canonical prefix of every normalized number.
	CountryCode = "380"

	canonicalLen  = 12
	subscriberLen = 9
)

// Normalize strips everything but digits and rewrites the result to
// 380XXXXXXXXX. It returns "" when the input has no recognizable shape.
func Normalize(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == canonicalLen && strings.HasPrefix(digits, CountryCode):
		return digits
	case len(digits) == 10 && strings.HasPrefix(digits, "0"):
		return CountryCode + digits[1:]
	case len(digits) == subscriberLen:
		return CountryCode + digits
	case len(digits) == 11 && strings.HasPrefix(digits, "38"):
		// 38 + subscriber number, the trunk zero was dropped
		return CountryCode + digits[2:]
	case len(digits) > canonicalLen && strings.HasPrefix(digits, CountryCode):
		return digits[:canonicalLen]
	default:
		return ""
	}
}

// HasDigits reports whether s contains at least one decimal digit.
func HasDigits(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return r >= '0' && r <= '9' }) >= 0
}
