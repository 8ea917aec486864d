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

package ibs_test

import (
	"errors"
	"math"
	"testing"

	"github.com/zintix-labs/ibslab/errs"
	"github.com/zintix-labs/ibslab/sdk/core"
	"github.com/zintix-labs/ibslab/sdk/ibs"
)

// hitEvery returns a probe that hits on every k-th call, cycling.
// The cycle makes it deterministic across repeats: every repeat sees
// exactly k attempts per item.
func hitEvery(k int) ibs.Probe {
	n := 0
	return ibs.ProbeFunc(func() (bool, error) {
		n++
		if n == k {
			n = 0
			return true, nil
		}
		return false, nil
	})
}

func alwaysHit() ibs.Probe {
	return ibs.ProbeFunc(func() (bool, error) { return true, nil })
}

func neverHit() ibs.Probe {
	return ibs.ProbeFunc(func() (bool, error) { return false, nil })
}

// expectContrib computes the harmonic-sum forms of the two estimators:
//
//	logp(k) = -Σ_{j=1}^{k-1} 1/j
//	var(k)  =  Σ_{j=1}^{k-1} 1/j²
func expectContrib(k int) (logp, v float64) {
	for j := 1; j < k; j++ {
		logp -= 1 / float64(j)
		v += 1 / (float64(j) * float64(j))
	}
	return
}

func near(t *testing.T, name string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Fatalf("%s: got %v, want %v (tol %v)", name, got, want, tol)
	}
}

// ============================================================
// 估計量恆等式
// ============================================================

// ψ(1)−ψ(k) 與 ψ₁(1)−ψ₁(k) 必須等於對應的調和級數部分和。
// 用 hitEvery(k) 的單 item 估計驗證（單 item、單 repeat：LogP 即該 item 的貢獻）。
func TestContribHarmonicIdentity(t *testing.T) {
	for _, k := range []int{1, 2, 3, 5, 10, 50, 200} {
		res, err := ibs.EstimateProbes([]ibs.Probe{hitEvery(k)}, ibs.Options{MinLogP: ibs.NoFloor})
		if err != nil {
			t.Fatalf("k=%d: unexpected error: %v", k, err)
		}
		wantLogp, wantVar := expectContrib(k)
		near(t, "logp", res.LogP, wantLogp, 1e-9)
		near(t, "std", res.Std, math.Sqrt(wantVar), 1e-9)
		if !res.Converged {
			t.Fatalf("k=%d: expected converged", k)
		}
		if res.NCalls != int64(k) {
			t.Fatalf("k=%d: ncalls got %d, want %d", k, res.NCalls, k)
		}
	}
}

// ============================================================
// 決定性路徑（sequential / parallel 精確值）
// ============================================================

func TestAlwaysHit(t *testing.T) {
	n := 64
	probes := make([]ibs.Probe, n)
	for i := range probes {
		probes[i] = alwaysHit()
	}
	res, err := ibs.EstimateProbes(probes, ibs.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.LogP != 0 || res.Std != 0 || !res.Converged {
		t.Fatalf("perfect model should give exact zero: %+v", res)
	}
	if res.NCalls != int64(n) {
		t.Fatalf("ncalls got %d, want %d", res.NCalls, n)
	}
}

func TestEmptyDataset(t *testing.T) {
	res, err := ibs.EstimateProbes(nil, ibs.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.LogP != 0 || res.Std != 0 || !res.Converged || res.NCalls != 0 {
		t.Fatalf("empty dataset should be trivially converged: %+v", res)
	}
}

// 同一組決定性 probe 在 sequential 與 parallel 必須給出逐位元相同的結果。
func TestDeterministicExact(t *testing.T) {
	ks := []int{1, 2, 3, 7, 13}
	var wantLogp, wantVar float64
	var wantCalls int64
	for _, k := range ks {
		l, v := expectContrib(k)
		wantLogp += l
		wantVar += v
		wantCalls += int64(k)
	}

	for _, opt := range []ibs.Options{
		{},
		{Parallel: true, BatchSize: 4, Workers: 3},
		{Parallel: true, BatchSize: 1, Workers: 2},
	} {
		probes := make([]ibs.Probe, len(ks))
		for i, k := range ks {
			probes[i] = hitEvery(k)
		}
		res, err := ibs.EstimateProbes(probes, opt)
		if err != nil {
			t.Fatalf("opt=%+v: unexpected error: %v", opt, err)
		}
		near(t, "logp", res.LogP, wantLogp, 1e-9)
		near(t, "std", res.Std, math.Sqrt(wantVar), 1e-9)
		if res.NCalls != wantCalls {
			t.Fatalf("opt=%+v: ncalls got %d, want %d", opt, res.NCalls, wantCalls)
		}
	}
}

// Repeats=R 對循環 probe：每個 repeat 看到相同的 k，
// 所以 LogP 不變、Std = sqrt(Σvar/R)、NCalls 變 R 倍。
func TestRepeatsCombine(t *testing.T) {
	ks := []int{2, 5, 9}
	var wantLogp, wantVar float64
	var wantCalls int64
	for _, k := range ks {
		l, v := expectContrib(k)
		wantLogp += l
		wantVar += v
		wantCalls += int64(k)
	}

	probes := make([]ibs.Probe, len(ks))
	for i, k := range ks {
		probes[i] = hitEvery(k)
	}
	res, err := ibs.EstimateProbes(probes, ibs.Options{Repeats: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	near(t, "logp", res.LogP, wantLogp, 1e-9)
	near(t, "std", res.Std, math.Sqrt(wantVar*3/3), 1e-9)
	if res.NCalls != 3*wantCalls {
		t.Fatalf("ncalls got %d, want %d", res.NCalls, 3*wantCalls)
	}
}

// ============================================================
// 提早中止地板
// ============================================================

func TestEarlyStopSequential(t *testing.T) {
	// 永不命中的 item：第 1 輪後 k=2、pending = -1 < -0.1 → 裁剪。
	res, err := ibs.EstimateProbes([]ibs.Probe{neverHit()}, ibs.Options{MinLogP: -0.1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Converged {
		t.Fatal("expected truncation")
	}
	if res.LogP != -0.1 {
		t.Fatalf("truncated logp got %v, want the floor -0.1", res.LogP)
	}
	if !math.IsNaN(res.Std) {
		t.Fatalf("truncated std must be NaN, got %v", res.Std)
	}
	if res.NCalls != 1 {
		t.Fatalf("ncalls got %d, want 1", res.NCalls)
	}
}

func TestEarlyStopParallel(t *testing.T) {
	// batch=4：第一個 barrier 後 k=5、pending = logp(5) ≈ -2.08 → 裁剪，恰好 4 次呼叫。
	res, err := ibs.EstimateProbes([]ibs.Probe{neverHit()},
		ibs.Options{MinLogP: -0.1, Parallel: true, BatchSize: 4, Workers: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Converged || res.LogP != -0.1 || !math.IsNaN(res.Std) {
		t.Fatalf("unexpected truncation result: %+v", res)
	}
	if res.NCalls != 4 {
		t.Fatalf("ncalls got %d, want 4", res.NCalls)
	}
}

// 已收斂 item 的貢獻也算進地板檢查：一個必中 item 不能拯救一個深陷的 item，
// 但它的 0 貢獻也不會讓裁剪變嚴。
func TestEarlyStopMixed(t *testing.T) {
	probes := []ibs.Probe{alwaysHit(), neverHit()}
	res, err := ibs.EstimateProbes(probes, ibs.Options{MinLogP: -3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Converged {
		t.Fatal("expected truncation")
	}
	// 第 r 輪後 pending = -Σ_{j=1}^{r} 1/j；-1-1/2-1/3-1/4-1/5-1/6-... 越過 -3
	// 需要 11 輪（H_11 ≈ 3.0199）。呼叫數 = 1（必中）+ 11（未中）。
	if res.NCalls != 12 {
		t.Fatalf("ncalls got %d, want 12", res.NCalls)
	}
}

// 被裁剪的 repeat 立即結束整個估計，不再執行後續 repeat。
func TestEarlyStopSkipsRemainingRepeats(t *testing.T) {
	res, err := ibs.EstimateProbes([]ibs.Probe{neverHit()},
		ibs.Options{Repeats: 5, MinLogP: -0.1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Converged {
		t.Fatal("expected truncation")
	}
	if res.NCalls != 1 {
		t.Fatalf("repeat 1 truncates after 1 call, got ncalls=%d", res.NCalls)
	}
}

func TestStdOr(t *testing.T) {
	r := ibs.Result{LogP: -1, Std: math.NaN(), Converged: false}
	if got := r.StdOr(1.0); got != 1.0 {
		t.Fatalf("StdOr on truncated result got %v, want 1.0", got)
	}
	r = ibs.Result{LogP: -1, Std: 0.5, Converged: true}
	if got := r.StdOr(1.0); got != 0.5 {
		t.Fatalf("StdOr on converged result got %v, want 0.5", got)
	}
}

// ============================================================
// 錯誤傳遞與參數驗證
// ============================================================

func TestProbeErrorPropagates(t *testing.T) {
	sentinel := errors.New("simulator exploded")
	boom := ibs.ProbeFunc(func() (bool, error) { return false, sentinel })

	for _, opt := range []ibs.Options{
		{},
		{Parallel: true, BatchSize: 8, Workers: 2},
	} {
		_, err := ibs.EstimateProbes([]ibs.Probe{hitEvery(3), boom}, opt)
		if !errors.Is(err, sentinel) {
			t.Fatalf("opt=%+v: probe error must propagate unmodified, got %v", opt, err)
		}
	}
}

func TestMaxAttemptsWarn(t *testing.T) {
	for _, opt := range []ibs.Options{
		{MaxAttempts: 10},
		{MaxAttempts: 10, Parallel: true, BatchSize: 4, Workers: 2},
	} {
		_, err := ibs.EstimateProbes([]ibs.Probe{neverHit()}, opt)
		if err == nil {
			t.Fatalf("opt=%+v: expected attempt cap error", opt)
		}
		e, ok := errs.AsErr(err)
		if !ok || e.ErrLv != errs.Warn {
			t.Fatalf("opt=%+v: attempt cap should be warn level, got %v", opt, err)
		}
	}
}

func TestOptionValidation(t *testing.T) {
	bad := []ibs.Options{
		{Repeats: -1},
		{MinLogP: 0.5},
		{BatchSize: -2},
		{Workers: -1},
		{MaxAttempts: -3},
	}
	for _, opt := range bad {
		if _, err := ibs.EstimateProbes([]ibs.Probe{alwaysHit()}, opt); err == nil {
			t.Fatalf("opt=%+v: expected validation error", opt)
		}
	}
}

// ============================================================
// 統計性質（固定 seed）
// ============================================================

// bernoulliProbes builds n probes that each hit with probability p,
// every probe owning its own PRNG (safe for the parallel path).
func bernoulliProbes(n int, p float64, baseSeed int64) []ibs.Probe {
	probes := make([]ibs.Probe, n)
	for i := range probes {
		c := core.New(core.Default().New(baseSeed + int64(i)*7919))
		probes[i] = ibs.ProbeFunc(func() (bool, error) { return c.Bernoulli(p), nil })
	}
	return probes
}

// 命中率 p 的 n 個 item：E[LogP] = n·ln(p)，Std 是估計器自身回報的標準差。
// 以 5σ 檢查偏差（固定 seed，不會 flaky）。
func TestBernoulliUnbiased(t *testing.T) {
	const (
		n    = 1000
		p    = 0.3
		seed = 20250831
	)
	want := float64(n) * math.Log(p)

	seq, err := ibs.EstimateProbes(bernoulliProbes(n, p, seed), ibs.Options{})
	if err != nil {
		t.Fatalf("sequential: %v", err)
	}
	if !seq.Converged {
		t.Fatal("sequential: expected convergence")
	}
	if d := math.Abs(seq.LogP - want); d > 5*seq.Std {
		t.Fatalf("sequential bias: |%v - %v| = %v > 5σ (σ=%v)", seq.LogP, want, d, seq.Std)
	}

	par, err := ibs.EstimateProbes(bernoulliProbes(n, p, seed+1),
		ibs.Options{Parallel: true, BatchSize: 16, Workers: 4})
	if err != nil {
		t.Fatalf("parallel: %v", err)
	}
	if !par.Converged {
		t.Fatal("parallel: expected convergence")
	}
	if d := math.Abs(par.LogP - want); d > 5*par.Std {
		t.Fatalf("parallel bias: |%v - %v| = %v > 5σ (σ=%v)", par.LogP, want, d, par.Std)
	}

	// 兩條路徑統計等價：均值差距應落在合併標準差的 5σ 內
	comb := math.Hypot(seq.Std, par.Std)
	if d := math.Abs(seq.LogP - par.LogP); d > 5*comb {
		t.Fatalf("sequential vs parallel diverge: %v > 5σ (σ=%v)", d, comb)
	}

	// 期望呼叫數 ~ n/p；10n 上界是寬鬆的健全性檢查
	if seq.NCalls < n || seq.NCalls > int64(10*n) {
		t.Fatalf("sequential ncalls out of sane range: %d", seq.NCalls)
	}
}

// mismatchProbes 建立 Bernoulli 校準網格的一個 cell：
// 觀測值 x_i 以 dataP 抽出後固定，模型以 modelP 模擬，命中 = 模擬值等於觀測值。
// 每個 item 的命中率因此是 modelP（x_i=1）或 1−modelP（x_i=0）——
// dataP ≠ modelP 時命中率天然異質，這正是 mismatch 情境要考的。
func mismatchProbes(xs []bool, modelP float64, baseSeed int64) []ibs.Probe {
	probes := make([]ibs.Probe, len(xs))
	for i := range probes {
		x := xs[i]
		c := core.New(core.Default().New(baseSeed + int64(i)*7919))
		probes[i] = ibs.ProbeFunc(func() (bool, error) { return c.Bernoulli(modelP) == x, nil })
	}
	return probes
}

// 校準網格：dataP、modelP 各取 {0.1, 0.3, 0.5, 0.7, 0.9}，
// 1000-item 資料集、Repeats=1、每 cell 跑 trials 次獨立估計。
//
// 兩個性質一起驗：
//  1. 覆蓋率：|LogP − truth| ≤ 4×Std 絕大多數成立
//     （250 次估計、常態 4σ 尾巴的期望出界數 ≪ 1，門檻放寬到 5 以吸收偏態）。
//  2. 聚合相對誤差：|Σ(LogP − truth)| / Σ|truth| < 1%
//     （誤差跨 cell 獨立，聚合後 1% 約在 5σ 之外；固定 seed，不會 flaky）。
//
// truth 可解析：truth = n₁·ln(modelP) + n₀·ln(1−modelP)，n₁ 為觀測命中數。
func TestBernoulliGridCalibration(t *testing.T) {
	const (
		n      = 1000
		trials = 10
		seed   = 402653189
	)
	grid := []float64{0.1, 0.3, 0.5, 0.7, 0.9}

	var sumErr, sumAbsTruth float64
	outliers, total := 0, 0

	for di, dataP := range grid {
		// 固定觀測資料集：同一 dataP 的所有 model cell 共用
		data := core.New(core.Default().New(seed + int64(di)))
		xs := make([]bool, n)
		n1 := 0
		for i := range xs {
			xs[i] = data.Bernoulli(dataP)
			if xs[i] {
				n1++
			}
		}

		for mi, modelP := range grid {
			truth := float64(n1)*math.Log(modelP) + float64(n-n1)*math.Log(1-modelP)

			for tr := 0; tr < trials; tr++ {
				base := seed + int64(1_000_000*(di*len(grid)+mi)+10_007*tr)
				res, err := ibs.EstimateProbes(mismatchProbes(xs, modelP, base), ibs.Options{Repeats: 1})
				if err != nil {
					t.Fatalf("dataP=%v modelP=%v trial=%d: %v", dataP, modelP, tr, err)
				}
				if !res.Converged {
					t.Fatalf("dataP=%v modelP=%v trial=%d: expected convergence", dataP, modelP, tr)
				}
				if math.Abs(res.LogP-truth) > 4*res.Std {
					outliers++
				}
				total++
				sumErr += res.LogP - truth
				sumAbsTruth += math.Abs(truth)
			}
		}
	}

	if outliers > 5 {
		t.Fatalf("4σ coverage broken: %d of %d estimates out of band", outliers, total)
	}
	if rel := math.Abs(sumErr) / sumAbsTruth; rel > 0.01 {
		t.Fatalf("mean relative error %.4f%% exceeds 1%%", rel*100)
	}
}

// Repeats 合併規則：變異數總和除以 R（不是 R²），
// 所以回報的 Std 追蹤「單次 run 的標準差」，不隨 R 縮小；
// R 增加換到的是 LogP 均值的穩定，不是 Std 欄位的縮小。
func TestRepeatsStdTracksSingleRun(t *testing.T) {
	const (
		n    = 400
		p    = 0.25
		seed = 777
	)
	one, err := ibs.EstimateProbes(bernoulliProbes(n, p, seed), ibs.Options{Repeats: 1})
	if err != nil {
		t.Fatalf("repeats=1: %v", err)
	}
	four, err := ibs.EstimateProbes(bernoulliProbes(n, p, seed), ibs.Options{Repeats: 4})
	if err != nil {
		t.Fatalf("repeats=4: %v", err)
	}
	ratio := four.Std / one.Std
	if ratio < 0.7 || ratio > 1.4 {
		t.Fatalf("std ratio R=4/R=1 got %v, want ≈ 1 (sum of run variances / R)", ratio)
	}
	if four.NCalls < 3*one.NCalls/2 {
		t.Fatalf("repeats=4 should spend more calls: %d vs %d", four.NCalls, one.NCalls)
	}
}
