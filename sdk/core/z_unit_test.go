// Copyright 2025 Zintix Labs
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

package core_test

import (
	"math"
	"testing"

	"github.com/zintix-labs/ibslab/sdk/core"
)

func TestDeterministicSequence(t *testing.T) {
	a := core.New(core.Default().New(42))
	b := core.New(core.Default().New(42))
	for i := 0; i < 1000; i++ {
		if a.Uint64() != b.Uint64() {
			t.Fatalf("same seed diverged at step %d", i)
		}
	}

	c := core.New(core.Default().New(43))
	same := 0
	for i := 0; i < 100; i++ {
		if a.Uint64() == c.Uint64() {
			same++
		}
	}
	if same > 2 {
		t.Fatalf("different seeds look identical: %d/100 collisions", same)
	}
}

func TestSnapshotRestore(t *testing.T) {
	a := core.New(core.Default().New(7))
	// advance a bit before snapshot
	for i := 0; i < 17; i++ {
		a.Uint64()
	}
	snap, err := a.Snapshot()
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	want := make([]uint64, 32)
	for i := range want {
		want[i] = a.Uint64()
	}

	b := core.New(core.Default().New(999)) // unrelated seed
	if err := b.Restore(snap); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	for i := range want {
		if got := b.Uint64(); got != want[i] {
			t.Fatalf("restored sequence diverged at step %d", i)
		}
	}

	if err := b.Restore(nil); err == nil {
		t.Fatalf("empty state should fail to restore")
	}
}

func TestBoundedSampling(t *testing.T) {
	c := core.New(core.Default().New(1))
	if c.IntN(0) != -1 || c.IntN(-5) != -1 {
		t.Fatalf("IntN sentinel broken")
	}
	if c.UintN(0) != 0 {
		t.Fatalf("UintN(0) must be 0")
	}
	for i := 0; i < 1000; i++ {
		if v := c.IntN(10); v < 0 || v >= 10 {
			t.Fatalf("IntN out of range: %d", v)
		}
		if v := c.UintN(10); v >= 10 {
			t.Fatalf("UintN out of range: %d", v)
		}
		if f := c.Float64(); f < 0 || f >= 1 {
			t.Fatalf("Float64 out of range: %f", f)
		}
	}
}

func TestBernoulli(t *testing.T) {
	c := core.New(core.Default().New(5))
	if c.Bernoulli(0) || c.Bernoulli(-1) {
		t.Fatalf("p<=0 must be false")
	}
	if !c.Bernoulli(1) || !c.Bernoulli(2) {
		t.Fatalf("p>=1 must be true")
	}

	n := 100000
	hits := 0
	for i := 0; i < n; i++ {
		if c.Bernoulli(0.3) {
			hits++
		}
	}
	got := float64(hits) / float64(n)
	// 0.3 ± 5σ, σ = sqrt(p(1-p)/n) ≈ 0.00145
	if math.Abs(got-0.3) > 0.008 {
		t.Fatalf("Bernoulli(0.3) rate off: %f", got)
	}
}
