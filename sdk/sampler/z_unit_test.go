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

package sampler

import (
	"crypto/rand"
	"math"
	"math/big"
	"testing"

	"github.com/zintix-labs/ibslab/sdk/core"
)

// -----------------------------------------------------------------------------
// Helper Functions
// -----------------------------------------------------------------------------

// assertPanic 驗證函數是否如預期觸發 panic
func assertPanic(t *testing.T, f func(), msg string) {
	t.Helper()
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("expected panic for %s, but got none", msg)
		}
	}()
	f()
}

// checkDistribution 驗證抽樣結果的分佈是否符合預期權重
func checkDistribution(t *testing.T, name string, weights []int, samples []int, tolerance float64) {
	t.Helper()
	totalW := 0
	for _, w := range weights {
		totalW += w
	}
	if totalW == 0 {
		return
	}

	counts := make(map[int]int)
	for _, idx := range samples {
		counts[idx]++
	}

	totalSamples := len(samples)
	for i, w := range weights {
		if w == 0 {
			if counts[i] > 0 {
				t.Errorf("[%s] expected 0 samples for index %d (weight 0), got %d", name, i, counts[i])
			}
			continue
		}
		expectedProb := float64(w) / float64(totalW)
		actualProb := float64(counts[i]) / float64(totalSamples)
		diff := math.Abs(expectedProb - actualProb)

		if diff > tolerance {
			t.Errorf("[%s] index %d: expected prob %.3f, got %.3f (diff %.3f > tol %.3f)",
				name, i, expectedProb, actualProb, diff, tolerance)
		}
	}
}

// -----------------------------------------------------------------------------
// Tests for AliasTable
// -----------------------------------------------------------------------------

// TestAliasTable_Distribution 驗證 Alias Table 的抽樣分佈
// 檢查項目: 大量抽樣結果應符合權重比例
func TestAliasTable_Distribution(t *testing.T) {
	seed, _ := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	c := core.New(core.Default().New(seed.Int64()))
	weights := []int{10, 20, 70}
	at := BuildAliasTable(weights)

	trials := 100000
	samples := make([]int, trials)
	for i := 0; i < trials; i++ {
		samples[i] = at.Pick(c)
	}
	checkDistribution(t, "AliasTable", weights, samples, 0.01)
}

// TestAliasTable_Panics 驗證 Alias Table 的各種錯誤情境
// 檢查項目: 全零權重、負權重、總權重溢位應觸發 panic
func TestAliasTable_Panics(t *testing.T) {
	// All zero
	assertPanic(t, func() {
		BuildAliasTable([]int{0, 0, 0})
	}, "All zero weights")

	// Negative
	assertPanic(t, func() {
		BuildAliasTable([]int{10, -1})
	}, "Negative weight")

	// Total overflow check
	assertPanic(t, func() {
		BuildAliasTable([]int{math.MaxInt, 1})
	}, "Total overflow")
}

// -----------------------------------------------------------------------------
// Tests for Look-Up Table (LUT)
// -----------------------------------------------------------------------------

// TestLUT_Distribution 驗證 LUT 的抽樣分佈
// 檢查項目: 大量抽樣結果應符合權重比例
func TestLUT_Distribution(t *testing.T) {
	seed, _ := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	c := core.New(core.Default().New(seed.Int64()))
	weights := []int{1, 2, 7} // 適合 LUT 的小權重
	lut := BuildLUT(weights)

	trials := 10000
	samples := make([]int, trials)
	for i := 0; i < trials; i++ {
		samples[i] = lut.Pick(c)
	}
	checkDistribution(t, "LUT", weights, samples, 0.015)
}

// TestLUT_Panics 驗證 LUT 的各種錯誤情境
// 檢查項目: 超過容量上限、負權重、全零權重應觸發 panic
func TestLUT_Panics(t *testing.T) {
	// Capacity Limit
	assertPanic(t, func() {
		// 模擬超過 MaxLUTCapacity
		weights := []int{int(maxLUTCap) + 1}
		BuildLUT(weights)
	}, "Exceed MaxLUTCapacity")

	// Negative
	assertPanic(t, func() {
		BuildLUT([]int{10, -10})
	}, "Negative weight")

	// All zero
	assertPanic(t, func() {
		BuildLUT([]int{0, 0})
	}, "All zero weights")
}

// -----------------------------------------------------------------------------
// Tests for consistency between AliasTable and LUT
// -----------------------------------------------------------------------------

// TestAliasLUTAgree 驗證兩種建表方式對同一組權重收斂到同一個分佈
func TestAliasLUTAgree(t *testing.T) {
	weights := []int{5, 15, 30, 50}
	at := BuildAliasTable(weights)
	lut := BuildLUT(weights)

	seed, _ := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	c1 := core.New(core.Default().New(seed.Int64()))
	c2 := core.New(core.Default().New(seed.Int64() ^ 1))

	trials := 100000
	atSamples := make([]int, trials)
	lutSamples := make([]int, trials)
	for i := 0; i < trials; i++ {
		atSamples[i] = at.Pick(c1)
		lutSamples[i] = lut.Pick(c2)
	}
	checkDistribution(t, "AliasTable-agree", weights, atSamples, 0.01)
	checkDistribution(t, "LUT-agree", weights, lutSamples, 0.01)
}
