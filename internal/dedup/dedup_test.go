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

package dedup

import (
	"context"
	"testing"
)

// TestIsNew_WithoutRedis verifies that a filter with no client never drops updates.
func TestIsNew_WithoutRedis(t *testing.T) {
	f := NewFilter(nil)

	for i := 0; i < 2; i++ {
		isNew, err := f.IsNew(context.Background(), 1001)
		if err != nil {
			t.Fatalf("IsNew: %v", err)
		}
		if !isNew {
			t.Errorf("call %d: IsNew = false, want true", i)
		}
	}
}

// TestKey verifies the Redis key namespace.
func TestKey(t *testing.T) {
	if got := key(42); got != "accessbot:update:42" {
		t.Errorf("key(42) = %q", got)
	}
}
