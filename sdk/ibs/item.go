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

package ibs

import "gonum.org/v1/gonum/mathext"

// item 單一觀測項目的估計器狀態。
//
// 以「位置索引 + done 旗標」的 arena 管理（不依賴物件身份/雜湊的集合），
// active 列表只存索引。k 單調遞增：每次 miss +1；hit 的那一輪不再 +1，
// 因此收斂時 k = 含 hit 在內的總嘗試數（幾何分布取值，k >= 1）。
type item struct {
	k    int64
	done bool
}

// ψ(1) 與 ψ₁(1)。ψ₁(x) = ζ(2, x)（Hurwitz zeta），gonum 沒有獨立的 trigamma，
// 但對本演算法只需要 ψ₁ 在正實數上的值，ζ(2, ·) 即是。
var (
	psiOne  = mathext.Digamma(1)
	psi1One = mathext.Zeta(2, 1)
)

// logContrib 回傳 ψ(1) − ψ(k)：log(p) 的不偏估計量。k = 1 時恰為 0。
func logContrib(k int64) float64 {
	if k <= 1 {
		return 0
	}
	return psiOne - mathext.Digamma(float64(k))
}

// varContrib 回傳 ψ₁(1) − ψ₁(k)：logContrib 變異數的不偏估計量。k = 1 時恰為 0。
func varContrib(k int64) float64 {
	if k <= 1 {
		return 0
	}
	return psi1One - mathext.Zeta(2, float64(k))
}

// runStat 單次 run（一個 repeat）的內部結果。
// vsum 是已收斂 item 的變異數貢獻總和；未收斂（提早中止）時無定義、不得使用。
type runStat struct {
	logp      float64
	vsum      float64
	calls     int64
	converged bool
}
