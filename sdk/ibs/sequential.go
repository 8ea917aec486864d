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

import (
	"math"

	"github.com/zintix-labs/ibslab/errs"
)

// runSequential 單線程逐輪執行：
//
//  1. 所有 item 以 k = 1 起始、全部 active。
//  2. 每輪對每個 active item 呼叫一次 Probe：
//     hit  → 以當前 k 結算貢獻（logContrib/varContrib），移出 active。
//     miss → k += 1。
//  3. 整輪結束後檢查地板：finalized + Σ(active item 的當前估計) < minLogP 即中止。
//     未收斂 item 的「當前估計」只用於這個檢查，不會成為最終貢獻。
//  4. active 清空後收斂，回傳結算值。
//
// 注意：不保證終止。若某 item 的真實命中機率極小，k 會無上界成長；
// maxAttempts > 0 時超過上限以 Warn 級錯誤中止（外部安全閥）。
func runSequential(probes []Probe, minLogP float64, maxAttempts int64) (runStat, error) {
	n := len(probes)
	items := make([]item, n)
	for i := range items {
		items[i].k = 1
	}
	active := make([]int, n)
	for i := range active {
		active[i] = i
	}

	hasFloor := !math.IsInf(minLogP, -1)

	var st runStat
	for len(active) > 0 {
		// 就地過濾：寫入索引永遠落後讀取索引，重用同一塊底層陣列是安全的
		next := active[:0]
		for _, idx := range active {
			it := &items[idx]
			hit, err := probes[idx].Attempt()
			st.calls++
			if err != nil {
				return runStat{}, err
			}
			if hit {
				it.done = true
				st.logp += logContrib(it.k)
				st.vsum += varContrib(it.k)
				continue
			}
			it.k++
			if maxAttempts > 0 && it.k > maxAttempts {
				return runStat{}, errs.Warnf("attempt cap exceeded: item %d reached %d attempts without a hit", idx, maxAttempts)
			}
			next = append(next, idx)
		}
		active = next

		if hasFloor && len(active) > 0 {
			pending := 0.0
			for _, idx := range active {
				pending += logContrib(items[idx].k)
			}
			if st.logp+pending < minLogP {
				return runStat{logp: minLogP, calls: st.calls, converged: false}, nil
			}
		}
	}

	st.converged = true
	return st, nil
}
