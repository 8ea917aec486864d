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

// Package core 提供 Ibslab 的亂數核心（PRNG）合約與預設實作。
//
// 設計重點：
//   - 可重現（reproducible）：同一個 seed 必須產生同一條隨機序列。
//   - 可審計（auditable）：PRNG 狀態可以 Snapshot/Restore（以 []byte 交換），
//     讓任何一次估計都能在任意節點被完整重放。
//   - 模擬類工作負載的熱路徑是大量 Bernoulli 取樣，Core 直接提供對應 helper。
package core

// PRNG 定義 Core 所需的亂數來源，需同時支援取樣與狀態保存/還原。
type PRNG interface {
	RAND
	Restorable
}

// Restorable 定義可快照與還原的狀態介面。
type Restorable interface {
	// Snapshot 回傳可用於還原的序列化狀態。
	Snapshot() ([]byte, error)
	// Restore 依序列化狀態還原 PRNG 內部狀態。
	Restore([]byte) error
}

// RAND 定義核心亂數取樣能力。
//
// 把 bounded 生成（UintN/IntN）與 Float64 交由 PRNG 自己實作，
// 能讓每個 PRNG 用最合適的 fast path 與精度取捨（32-bit vs 53-bit mantissa）。
type RAND interface {
	// Uint64 回傳非負 uint64 亂數。
	Uint64() uint64
	// Float64 回傳 [0,1) 的浮點亂數。
	Float64() float64
	// UintN 回傳 [0,max) 的 uint 亂數，若 max == 0 回傳 0。
	UintN(uint) uint
	// IntN 回傳 [0,max) 的 int 亂數，若 max <= 0 回傳 -1。
	IntN(int) int
}

type PRNGFactory interface {
	// New 以指定 seed 建立新的 PRNG。
	//
	// 合約（很重要）：在同一個實作與同一個版本下，New(seed) 必須是「決定性」的——
	// 相同的 seed 必須產生相同的初始內部狀態與輸出序列。
	//
	// seed 的生命週期由 Lab 統一管理：外部未提供時由 Lab 產生並保存 baseSeed，
	// 後續所有 Sampler / per-item probe 皆由 baseSeed 以固定算法派生子 seed。
	New(int64) PRNG
}

// DefaultPRNG 實作預設的 PRNGFactory（PCG，見 pcg.go）。
type DefaultPRNG struct{}

// New 滿足合約
func (d *DefaultPRNG) New(seed int64) PRNG {
	return newPCGWithSeed(seed)
}

func Default() *DefaultPRNG {
	return &DefaultPRNG{}
}

// Core 封裝 PRNG，並提供常用取樣方法。
type Core struct {
	PRNG
}

// New 允許使用外部自實現的 PRNG 建立 Core。
func New(rng PRNG) *Core {
	return &Core{rng}
}

// Bernoulli 以機率 p 回傳 true。
//
// p <= 0 恆為 false；p >= 1 恆為 true。
// 熱路徑：每次呼叫只消耗一個 Float64。
func (c *Core) Bernoulli(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return c.Float64() < p
}

// Sign 以機率 p 回傳 +1，否則 -1（隨機漫步的單步）。
func (c *Core) Sign(p float64) int {
	if c.Bernoulli(p) {
		return 1
	}
	return -1
}

// Pick 從 slice 中均勻取一個元素，空 slice 回傳 -1。
func (c *Core) Pick(s []int) int {
	if len(s) == 0 {
		return -1
	}
	return s[c.IntN(len(s))]
}
