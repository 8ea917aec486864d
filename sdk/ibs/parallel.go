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
	"sync"
	"sync/atomic"

	"github.com/zintix-labs/ibslab/errs"
)

// runParallel 與 runSequential 統計等價，差別只在嘗試的批次粒度與平行執行：
//
// 每個 batch 把 active item 的索引丟進 jobs channel，固定 worker pool 消化；
// worker 對取到的 item 連續嘗試最多 batch 次（hit 或 error 即停）。
// 每次 Attempt 後檢查收斂不值得同步成本，所以批次內不與其他 worker 協調。
//
// batch 內同一個 item 的 k / done 只由當前持有它的 worker 寫入（無寫競爭）；
// 跨 batch 沒有 worker 黏著性，item 狀態的發佈依靠 wg.Wait() 的完整 barrier，
// barrier 後由單線程做合併與地板檢查（synchronize-then-merge，不用細粒度鎖）。
//
// 地板檢查用的彙總每個 batch 從全部 item 記錄重算：
// 已收斂 item 以最終 k 結算、未收斂 item 以當前 k 代入，公式與 sequential 相同。
func runParallel(probes []Probe, minLogP float64, batch, workers int, maxAttempts int64) (runStat, error) {
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

	var calls atomic.Int64
	for len(active) > 0 {
		nw := min(workers, len(active))
		jobs := make(chan int, len(active))
		werrs := make([]error, nw)

		wg := new(sync.WaitGroup)
		wg.Add(nw)
		for w := 0; w < nw; w++ {
			go func(w int) {
				defer wg.Done()
				for idx := range jobs {
					it := &items[idx]
					for a := 0; a < batch; a++ {
						hit, err := probes[idx].Attempt()
						calls.Add(1)
						if err != nil {
							// 原樣保留第一個錯誤，barrier 後回報；剩餘 jobs 交給其他 worker
							werrs[w] = err
							return
						}
						if hit {
							it.done = true
							break
						}
						it.k++
						if maxAttempts > 0 && it.k > maxAttempts {
							werrs[w] = errs.Warnf("attempt cap exceeded: item %d reached %d attempts without a hit", idx, maxAttempts)
							return
						}
					}
				}
			}(w)
		}
		for _, idx := range active {
			jobs <- idx
		}
		close(jobs)
		wg.Wait()

		for _, err := range werrs {
			if err != nil {
				return runStat{}, err
			}
		}

		// 合併（單線程）：重算彙總、重建 active、檢查地板
		var logp, vsum, pending float64
		next := active[:0]
		for i := range items {
			it := &items[i]
			if it.done {
				logp += logContrib(it.k)
				vsum += varContrib(it.k)
				continue
			}
			pending += logContrib(it.k)
			next = append(next, i)
		}
		active = next

		if len(active) == 0 {
			return runStat{logp: logp, vsum: vsum, calls: calls.Load(), converged: true}, nil
		}
		if hasFloor && logp+pending < minLogP {
			return runStat{logp: minLogP, calls: calls.Load(), converged: false}, nil
		}
	}

	// n == 0：空資料集，視為已收斂、貢獻為 0
	return runStat{converged: true}, nil
}
