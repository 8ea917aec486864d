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

package ibslab

import (
	"crypto/rand"
	"math"
	"math/big"
	"sync/atomic"

	"github.com/zintix-labs/ibslab/errs"
)

// cryptoSeed 以 crypto/rand 產生非負 seed。
// 對外服務情境避免可預測 RNG，同時保留可追溯性（seed 會被記錄）。
func cryptoSeed() (int64, error) {
	seed, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return 0, errs.Wrap(err, "new crypto seed error in go std lib")
	}
	return seed.Int64(), nil
}

const mask63 = uint64(1<<63) - 1

// seedMaker 從單一 baseSeed 派生一串互不重複的子 seed。
// 每個 item 的 probe、每台補上的 Sampler 都要有自己的 PRNG，
// 而全部 PRNG 的隨機性都必須能追溯回同一個 baseSeed（可重現）。
type seedMaker struct {
	state atomic.Uint64 // always in [0, 2^63)
}

func newSeedMaker(seed int64) *seedMaker {
	s := &seedMaker{}
	s.state.Store(uint64(seed) & mask63)
	return s
}

// state 走全週期（不重複），再用可逆 mix63 打散
//
// 注意：此方法可能在併發環境下被多 goroutines 同時呼叫（例如 RunMP）。
// 因此 state 的推進必須是原子的：
//   - 使用 CAS（Compare-And-Swap）迴圈確保每次呼叫都會取得唯一的下一個 state。
//   - 回傳值使用推進後的 state 經 mix63 打散後的結果。
func (s *seedMaker) next() int64 {
	for {
		old := s.state.Load()                                            // always masked
		next := (old*6364136223846793005 + 1442695040888963407) & mask63 // full-period LCG mod 2^63
		if s.state.CompareAndSwap(old, next) {
			return int64(mix63(next)) // 一定非負
		}
	}
}

// mix63：只用「可逆」的 bit 操作 + 乘奇數（mod 2^63）
func mix63(x uint64) uint64 {
	x &= mask63
	x ^= x >> 30
	x = (x * 0xBF58476D1CE4E5B9) & mask63 // 乘奇數 ⇒ mod 2^63 可逆
	x ^= x >> 27
	x = (x * 0x94D049BB133111EB) & mask63
	x ^= x >> 31
	return x & mask63
}
