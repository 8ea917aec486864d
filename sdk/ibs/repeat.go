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

import "math"

// estimate 執行 Repeats 次獨立 run 並合併：
//
//	logp  = Σ run.logp / repeats
//	var   = Σ run.vsum / repeats
//	ncall = Σ run.calls
//	converged = 所有 run 都收斂
//
// 任一 repeat 被地板裁剪就立即回傳（不再跑後續 repeat）：
// 被裁剪代表這組候選參數已被證明不值得繼續花模擬預算。
//
// 變異數除以 repeats（而非 repeats²）是沿用來源設計的合併公式，
// 與字面上的「獨立估計取平均」變異數法則不一致，但在確認語意前不擅自修正。
func estimate(probes []Probe, opt Options) (Result, error) {
	var sumLogp, sumVar float64
	var calls int64

	for r := 0; r < opt.Repeats; r++ {
		var st runStat
		var err error
		if opt.Parallel {
			st, err = runParallel(probes, opt.MinLogP, opt.BatchSize, opt.Workers, int64(opt.MaxAttempts))
		} else {
			st, err = runSequential(probes, opt.MinLogP, int64(opt.MaxAttempts))
		}
		if err != nil {
			return Result{}, err
		}
		calls += st.calls
		if !st.converged {
			return Result{
				LogP:      opt.MinLogP,
				Std:       math.NaN(),
				Converged: false,
				NCalls:    calls,
			}, nil
		}
		sumLogp += st.logp
		sumVar += st.vsum
	}

	rep := float64(opt.Repeats)
	return Result{
		LogP:      sumLogp / rep,
		Std:       math.Sqrt(sumVar / rep),
		Converged: true,
		NCalls:    calls,
	}, nil
}
