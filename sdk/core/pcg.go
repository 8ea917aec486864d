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

package core

import (
	"math/rand/v2"

	"github.com/zintix-labs/ibslab/errs"
)

// pcgPRNG 以標準庫 math/rand/v2 的 PCG 實作 PRNG 合約。
//
// Snapshot/Restore 直接走 PCG 的 MarshalBinary/UnmarshalBinary：
// rand.Rand 本身是 Source 上的無狀態包裝，因此只要保存 PCG 狀態即可完整重放。
type pcgPRNG struct {
	src *rand.PCG
	rnd *rand.Rand
}

// newPCGWithSeed 以 int64 seed 派生 PCG 的兩個 64-bit 狀態字。
// 第二個字用黃金比例常數拉開，避免 seq/state 同值造成的弱初始狀態。
func newPCGWithSeed(seed int64) *pcgPRNG {
	hi := uint64(seed)
	lo := hi*0x9E3779B97F4A7C15 + 0xD1B54A32D192ED03
	src := rand.NewPCG(hi, lo)
	return &pcgPRNG{
		src: src,
		rnd: rand.New(src),
	}
}

func (p *pcgPRNG) Uint64() uint64 {
	return p.rnd.Uint64()
}

func (p *pcgPRNG) Float64() float64 {
	return p.rnd.Float64()
}

func (p *pcgPRNG) UintN(max uint) uint {
	if max == 0 {
		return 0
	}
	return uint(p.rnd.Uint64N(uint64(max)))
}

func (p *pcgPRNG) IntN(max int) int {
	if max <= 0 {
		return -1
	}
	return p.rnd.IntN(max)
}

func (p *pcgPRNG) Snapshot() ([]byte, error) {
	bs, err := p.src.MarshalBinary()
	if err != nil {
		return nil, errs.Wrap(err, "pcg snapshot failed")
	}
	return bs, nil
}

func (p *pcgPRNG) Restore(state []byte) error {
	if len(state) == 0 {
		return errs.NewFatal("pcg restore: empty state")
	}
	if err := p.src.UnmarshalBinary(state); err != nil {
		return errs.Wrap(err, "pcg restore failed")
	}
	return nil
}
