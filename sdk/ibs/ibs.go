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

// Package ibs 實作 Inverse Binomial Sampling：
// 對「只能被模擬、無法解析求值」的模型估計觀測資料的 log-likelihood。
//
// 核心想法：對每個觀測 item 反覆模擬直到命中（hit），記錄首次命中前的嘗試數 k
// （幾何分布），再以 ψ(1) − ψ(k) 作為 log(p) 的不偏估計量、ψ₁(1) − ψ₁(k) 作為
// 該估計量變異數的不偏估計量（ψ 為 digamma、ψ₁ 為 trigamma）。
// 全部 item 的貢獻相加即為整份資料集的 log-likelihood 估計。
//
// 兩種執行策略（統計上等價）：
//   - sequential：逐輪對每個未收斂 item 各嘗試一次，輪間檢查提早中止地板。
//   - parallel：固定 worker pool，每個 item 在同步點之間最多連續嘗試 BatchSize 次，
//     barrier 後單線程合併（synchronize-then-merge）再檢查地板。
//
// 典型用途：把 (−LogP, Std) 當作噪聲目標值餵給外部優化器（pattern search、
// Bayesian optimization），以 MinLogP 地板便宜地淘汰明顯劣於現有基準的參數候選。
//
// 此包是純估計核心：不持有模型、不產生資料、不管理 RNG；
// 上層（ibslab.Sampler 等）負責把模型包成 Probe 再交給本包。
package ibs

import (
	"math"
	"runtime"

	"github.com/zintix-labs/ibslab/errs"
)

// Probe 是單一觀測 item 的「命中探測」能力：
// 每次 Attempt 都必須是一次全新的隨機模擬（獨立取樣），回傳模擬結果是否命中該 item。
//
// 合約：
//   - 連續呼叫之間統計獨立（新鮮隨機性），Probe 對呼叫端而言無狀態。
//   - Attempt 回傳的 error 會原封不動地向上傳遞並中止整次估計；本包不重試、不改寫。
//   - parallel 模式下同一個 Probe 只會被單一 worker 在 barrier 之間連續呼叫，
//     但跨 batch 沒有 worker 黏著性；Probe 的隨機來源必須可安全地跨 goroutine 交棒
//     （實務上：每個 item 配發自己的 PRNG 即可）。
type Probe interface {
	Attempt() (bool, error)
}

// ProbeFunc 讓純函數可以直接當 Probe 使用。
type ProbeFunc func() (bool, error)

func (f ProbeFunc) Attempt() (bool, error) { return f() }

// NoFloor 表示未設提早中止地板。
var NoFloor = math.Inf(-1)

// Options 估計參數。零值即為合理預設：
// Repeats=1、無地板、sequential、BatchSize=100、Workers=GOMAXPROCS、不設嘗試上限。
type Options struct {
	// Repeats 整體估計的獨立重複次數，結果取平均以降低變異。
	Repeats int
	// MinLogP 提早中止地板：一旦「已收斂貢獻 + 未收斂 item 的當前估計」低於地板，
	// 立即放棄並回傳 {LogP: MinLogP, Converged: false}。0（零值）代表未設地板。
	MinLogP float64
	// Parallel 啟用 worker pool 批次執行。
	Parallel bool
	// BatchSize parallel 模式下每個 item 在同步點之間連續嘗試的次數上限。
	BatchSize int
	// Workers parallel 模式下的 worker 數（0 = GOMAXPROCS）。
	Workers int
	// MaxAttempts 單一 item 的嘗試上限（0 = 不設限）。
	// 這是安全閥而非預設行為：命中機率極小的 item 理論上可能永遠不收斂，
	// 超過上限時以 Warn 級錯誤中止，而不是默默回傳截斷的估計。
	MaxAttempts int
}

// normalized 填入預設值。不修改 caller 的 Options。
func (o Options) normalized() Options {
	if o.Repeats == 0 {
		o.Repeats = 1
	}
	if o.MinLogP == 0 {
		o.MinLogP = NoFloor
	}
	if o.BatchSize == 0 {
		o.BatchSize = 100
	}
	if o.Workers == 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	return o
}

func (o Options) valid() error {
	if o.Repeats < 0 {
		return errs.NewWarn("repeats must be >= 1")
	}
	if o.MinLogP > 0 {
		return errs.NewWarn("min_logp must be <= 0")
	}
	if o.BatchSize < 0 {
		return errs.NewWarn("batch_size must be >= 1")
	}
	if o.Workers < 0 {
		return errs.NewWarn("workers must be >= 0")
	}
	if o.MaxAttempts < 0 {
		return errs.NewWarn("max_attempts must be >= 0")
	}
	return nil
}

// Result 一次估計的完整輸出。
type Result struct {
	// LogP log-likelihood 估計值；提早中止時等於 MinLogP。
	LogP float64 `json:"logp"`
	// Std 估計值的標準差；提早中止時為 NaN（截斷估計的變異數無定義）。
	Std float64 `json:"std"`
	// Converged 是否所有 item 都跑到收斂（false = 被地板裁剪）。
	Converged bool `json:"converged"`
	// NCalls 所有 item、所有 repeat 實際執行的 Probe 呼叫總數。
	NCalls int64 `json:"n_calls"`
}

// StdOr 回傳 Std；若 Std 無定義（NaN / 未收斂）則回傳 def。
// 外部優化器慣例：未收斂時以 1.0 當噪聲估計。
func (r Result) StdOr(def float64) float64 {
	if !r.Converged || math.IsNaN(r.Std) {
		return def
	}
	return r.Std
}

// Estimate 對一份觀測資料集估計 log-likelihood。
//
// hitTest 把單一 item 轉成它的 Probe（通常捕捉「模型參數 + 該 item 的觀測值 + 專屬 RNG」）。
// 每個 item 只建一個 Probe；repeat 之間重建的是估計器狀態，不是 Probe。
func Estimate[T any](items []T, hitTest func(T) Probe, opt Options) (Result, error) {
	probes := make([]Probe, len(items))
	for i, it := range items {
		probes[i] = hitTest(it)
	}
	return EstimateProbes(probes, opt)
}

// EstimateProbes 與 Estimate 相同，但直接接收已建好的 Probe 列表。
func EstimateProbes(probes []Probe, opt Options) (Result, error) {
	if err := opt.valid(); err != nil {
		return Result{}, err
	}
	return estimate(probes, opt.normalized())
}
