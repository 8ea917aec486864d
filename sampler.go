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
	"sync"
	"time"

	"github.com/zintix-labs/ibslab/dto"
	"github.com/zintix-labs/ibslab/errs"
	"github.com/zintix-labs/ibslab/sdk/core"
	"github.com/zintix-labs/ibslab/sdk/ibs"
	"github.com/zintix-labs/ibslab/sdk/model"
	"github.com/zintix-labs/ibslab/spec"
)

// Sampler 封裝一台「可對外提供估計」的模型取樣器。
//
// 你可以把 Sampler 視為 Model 的「外殼（shell）」：
//   - 對外：提供 Estimate 入口（HTTP/校準器通常只操作 Sampler）。
//   - 對內：持有 RNG（Core）、seed 派生鏈與可被模擬的模型（sdk/model.Model）。
//
// 並發語意：
//   - 同一台 Sampler 不應被多 goroutine 同時 Estimate（內部以 mutex 防護，
//     但鎖住的估計可能跑很久，併發請走 SamplerPool）。
//   - 估計本身的平行（EstimateSetting.Parallel）發生在 Sampler 內部：
//     每個 item 配發自己的派生 PRNG，worker 之間不共享隨機來源。
//
// Seed 語意：
//   - initseed 是出生 seed；datasetCore 與所有 per-item probe PRNG 都由它派生。
//   - 同一份設定 + 同一個 seed + 同一份觀測資料 ⇒ 同一個估計值（可重現）。
type Sampler struct {
	modelName string
	modelID   spec.MID
	es        *spec.EstimateSetting
	mdl       model.Model
	cf        core.PRNGFactory
	core      *core.Core // 合成資料生成用
	seeds     *seedMaker // per-item probe PRNG 派生
	mu        sync.Mutex
	initseed  int64
}

func newSampler(es *spec.EstimateSetting, reg *model.Registry, cf core.PRNGFactory) (*Sampler, error) {
	seed, err := cryptoSeed()
	if err != nil {
		return nil, err
	}
	return newSamplerWithSeed(es, reg, cf, seed)
}

// newSamplerWithSeed 以指定 seed 建立 Sampler。
//
// 建立流程：
//  1. reg.Build(es) 依設定建出可模擬的 Model（含 Params 強型別解碼）。
//  2. seed 派生鏈：core（資料生成）與 probe seeds 都掛在同一個 seedMaker 上。
func newSamplerWithSeed(es *spec.EstimateSetting, reg *model.Registry, cf core.PRNGFactory, seed int64) (*Sampler, error) {
	mdl, err := reg.Build(es)
	if err != nil {
		return nil, err
	}
	s := &Sampler{
		modelName: es.ModelName,
		modelID:   es.ModelID,
		es:        es,
		mdl:       mdl,
		cf:        cf,
		initseed:  seed,
	}
	s.rewind(seed)
	return s, nil
}

// rewind 重設整條 seed 派生鏈（含資料生成 Core）。
func (s *Sampler) rewind(seed int64) {
	s.initseed = seed
	s.seeds = newSeedMaker(seed)
	s.core = core.New(s.cf.New(s.seeds.next()))
}

func (s *Sampler) ModelName() string { return s.modelName }
func (s *Sampler) ModelID() spec.MID { return s.modelID }
func (s *Sampler) InitSeed() int64   { return s.initseed }

// options 把設定檔的估計參數轉成 ibs.Options（零值交由 ibs 補預設）。
func (s *Sampler) options() ibs.Options {
	return ibs.Options{
		Repeats:     s.es.Repeats,
		MinLogP:     s.es.MinLogP,
		Parallel:    s.es.Parallel,
		BatchSize:   s.es.BatchSize,
		Workers:     s.es.Workers,
		MaxAttempts: s.es.MaxAttempts,
	}
}

// GenItems 由模型生成 n 筆合成觀測資料（校準/demo 用）。
func (s *Sampler) GenItems(n int) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mdl.Items(s.core, n)
}

// Estimate 以設定檔的估計參數對觀測資料集估計 log-likelihood。
func (s *Sampler) Estimate(items []int) (ibs.Result, error) {
	return s.EstimateWith(items, s.options())
}

// EstimateWith 與 Estimate 相同，但由呼叫端覆寫估計參數。
//
// 每個 item 配發自己的派生 PRNG（見 ibs.Probe 的交棒合約）。
func (s *Sampler) EstimateWith(items []int, opt ibs.Options) (ibs.Result, error) {
	if len(items) == 0 {
		return ibs.Result{}, errs.NewWarn("empty dataset")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	probes := make([]ibs.Probe, len(items))
	for i, obs := range items {
		rng := core.New(s.cf.New(s.seeds.next()))
		probes[i] = s.mdl.Probe(obs, rng)
	}
	return ibs.EstimateProbes(probes, opt)
}

// TrueLogP 回傳觀測資料集的解析解 log-likelihood。
// 只有模型實作 Exact 時才有值（第二回傳值 false 代表模型無解析解）。
func (s *Sampler) TrueLogP(items []int) (float64, bool) {
	ex, ok := s.mdl.(model.Exact)
	if !ok {
		return 0, false
	}
	sum := 0.0
	for _, obs := range items {
		sum += ex.TrueLogP(obs)
	}
	return sum, true
}

// EstimateRequest 處理一個完整的對外估計請求並組出 DTO。
//
// 行為：
//  1. req.Seed 有值時 rewind 整條派生鏈（透過 pool 的可重現回放入口）。
//  2. 觀測資料：req.Items 優先；否則由模型生成 req.NItems（0 = 設定檔的 items）筆。
//  3. 估計完成後附掛解析解對照（模型支援時）與結束時的 Core 快照（審計）。
func (s *Sampler) EstimateRequest(req *dto.EstimateRequest) (dto.EstimateResult, error) {
	if err := req.Valid(); err != nil {
		return dto.EstimateResult{}, err
	}
	if req.Seed != nil {
		s.mu.Lock()
		s.rewind(*req.Seed)
		s.mu.Unlock()
	}

	items := req.Items
	if len(items) == 0 {
		n := req.NItems
		if n == 0 {
			n = s.es.Items
		}
		items = s.GenItems(n)
	}

	start := time.Now()
	res, err := s.Estimate(items)
	if err != nil {
		return dto.EstimateResult{}, err
	}
	usedMs := time.Since(start).Milliseconds()

	snap, err := s.SnapshotCore()
	if err != nil {
		return dto.EstimateResult{}, errs.NewFatal("after snapshot error " + err.Error())
	}

	out := dto.NewEstimateResultDTO(s.modelName, s.modelID, len(items), res, s.initseed, snap, usedMs)
	if truth, ok := s.TrueLogP(items); ok {
		out = out.WithTruth(truth)
	}
	return out, nil
}

// SnapshotCore 取得資料生成 Core 的狀態暫存。
//
// 注意：per-item probe PRNG 的狀態分散在各 probe 內部、不在此快照中；
// 完整重現請從 seed（rewind）重放，而不是從快照續跑。
func (s *Sampler) SnapshotCore() ([]byte, error) {
	return s.core.Snapshot()
}

// RestoreCore 恢復資料生成 Core 的狀態暫存。
func (s *Sampler) RestoreCore(src []byte) error {
	return s.core.Restore(src)
}
