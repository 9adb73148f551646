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

package phone

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "+380501234567", want: "380501234567"},
		{raw: "380501234567", want: "380501234567"},
		{raw: "0501234567", want: "380501234567"},
		{raw: "050 123 45 67", want: "380501234567"},
		{raw: "501-234-567", want: "380501234567"},
		{raw: "38501234567", want: "380501234567"},
		{raw: "38050123456789", want: "380501234567"},
		{raw: "+38 (050) 123-45-67", want: "380501234567"},
		{raw: "invalid", want: ""},
		{raw: "", want: ""},
		{raw: "12345", want: ""},
		{raw: "1501234567", want: ""},
		{raw: "441234567890", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := Normalize(tt.raw); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

// TestNormalize_Idempotent verifies that normalizing a normalized value is a no-op.
func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{"+380501234567", "0501234567", "501234567", "38501234567", "38050123456789", "junk", ""}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestHasDigits(t *testing.T) {
	if HasDigits("@someone") {
		t.Error("handle should have no digits")
	}
	if !HasDigits("call 050") {
		t.Error("expected digits")
	}
}
