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
	"io"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/zintix-labs/ibslab/errs"
	"github.com/zintix-labs/ibslab/recorder"
	"github.com/zintix-labs/ibslab/sdk/core"
	"github.com/zintix-labs/ibslab/sdk/model"
	"github.com/zintix-labs/ibslab/spec"
	"github.com/zintix-labs/ibslab/stats"
)

const capPrepare int = 100

// Calibrator 用於校準估計器行為：對「同一份固定資料集」重跑多次估計，
// 檢驗估計值的無偏性、±1σ/±2σ 覆蓋率與取樣成本。
//
// 資料集在建構時生成一次後固定不變；trial 之間的差異只來自估計器內部的隨機性，
// 這樣報表上的 spread 才是估計器本身的變異，而不是資料集抽樣的變異。
type Calibrator struct {
	ModelName string                       // 模型名稱
	ModelID   spec.MID                     // 模型名稱enum
	es        *spec.EstimateSetting        // 方便重用建立recorder
	reg       *model.Registry              // 模型註冊表
	cf        core.PRNGFactory             // 亂數生成器
	initSeed  int64                        // 初始下的種子
	seedmaker *seedMaker                   // 種子生成器
	sBuf      []*Sampler                   // 併發執行取樣器實例
	rBuf      []*recorder.EstimateRecorder // 併發估計紀錄員
	items     []int                        // 固定資料集（建構時生成一次）
	truth     *float64                     // 資料集的解析解（模型支援時）
}

func newCalibrator(es *spec.EstimateSetting, reg *model.Registry, cf core.PRNGFactory) (*Calibrator, error) {
	seed, err := cryptoSeed()
	if err != nil {
		return nil, err
	}
	return newCalibratorWithSeed(es, reg, cf, seed)
}

func newCalibratorWithSeed(es *spec.EstimateSetting, reg *model.Registry, cf core.PRNGFactory, seed int64) (*Calibrator, error) {
	c := &Calibrator{
		ModelName: es.ModelName,
		ModelID:   es.ModelID,
		es:        es,
		reg:       reg,
		cf:        cf,
		initSeed:  seed,
		seedmaker: newSeedMaker(seed),
		sBuf:      make([]*Sampler, 1, capPrepare),
		rBuf:      make([]*recorder.EstimateRecorder, 0, capPrepare),
	}
	s, err := newSamplerWithSeed(es, reg, cf, c.initSeed)
	if err != nil {
		return nil, err
	}
	c.sBuf[0] = s

	// 固定資料集：生成一次，之後所有 trial 共用
	c.items = s.GenItems(es.Items)
	if t, ok := s.TrueLogP(c.items); ok {
		c.truth = &t
	}
	return c, nil
}

// InitSeed 回傳出生 seed（報表重現用）。
func (c *Calibrator) InitSeed() int64 { return c.initSeed }

// Items 回傳固定資料集的副本。
func (c *Calibrator) Items() []int {
	out := make([]int, len(c.items))
	copy(out, c.items)
	return out
}

// Run 單線校準：以一台取樣器對固定資料集連跑指定 trial 數，回傳校準報表與用時。
func (c *Calibrator) Run(trials int, showpb bool) (*stats.CalibReport, time.Duration, error) {
	defer c.reset()
	if trials < 1 {
		return nil, 0, errs.NewWarn("trials must > 0")
	}
	if len(c.rBuf) == 0 {
		r, err := c.newRecorder()
		if err != nil {
			return nil, 0, err
		}
		c.rBuf = append(c.rBuf, r)
	}
	r := c.rBuf[0]
	s := c.sBuf[0]

	bar := pb.StartNew(trials)
	if !showpb {
		bar.SetWriter(io.Discard)
	}
	for i := 0; i < trials; i++ {
		res, err := s.Estimate(c.items)
		if err != nil {
			return nil, 0, err
		}
		r.Record(res)
		bar.Increment()
	}
	used := time.Since(bar.StartTime())
	bar.Finish()
	result := r.Done()
	result.Done()

	return result, used, nil
}

// RunMP 平行校準：mp 台取樣器分攤 trials 個 trial，合併紀錄後回傳校準報表與用時。
//
// 每台取樣器由 seedmaker 派生自己的 seed，worker 之間不共享隨機來源；
// 各 worker 各持一份 recorder，結束後用 MergeEstimateRecorder 合併。
func (c *Calibrator) RunMP(trials int, mp int, showpb bool) (*stats.CalibReport, time.Duration, error) {
	defer c.reset()
	if mp <= 0 {
		return nil, 0, errs.NewWarn("workers must > 0")
	}
	if trials < 1 {
		return nil, 0, errs.NewWarn("trials must > 0")
	}
	for len(c.sBuf) < mp {
		s, err := newSamplerWithSeed(c.es, c.reg, c.cf, c.seedmaker.next())
		if err != nil {
			return nil, 0, err
		}
		c.sBuf = append(c.sBuf, s)
	}
	for len(c.rBuf) < mp {
		r, err := c.newRecorder()
		if err != nil {
			return nil, 0, err
		}
		c.rBuf = append(c.rBuf, r)
	}

	// trial 以 channel 派工，先跑完的 worker 可以多拿，避免尾端閒置
	jobs := make(chan struct{}, trials)
	for i := 0; i < trials; i++ {
		jobs <- struct{}{}
	}
	close(jobs)

	wg := new(sync.WaitGroup)
	wg.Add(mp)
	bar := pb.StartNew(trials)
	if !showpb {
		bar.SetWriter(io.Discard)
	}
	errSlots := make([]error, mp)
	for w := 0; w < mp; w++ {
		go func(w int) {
			defer wg.Done()
			s := c.sBuf[w]
			r := c.rBuf[w]
			for range jobs {
				res, err := s.Estimate(c.items)
				if err != nil {
					errSlots[w] = err
					return
				}
				r.Record(res)
				bar.Increment()
			}
		}(w)
	}
	wg.Wait()
	used := time.Since(bar.StartTime())
	bar.Finish()

	for _, err := range errSlots {
		if err != nil {
			return nil, 0, err
		}
	}

	merged, err := recorder.MergeEstimateRecorder(c.rBuf)
	if err != nil {
		return nil, 0, err
	}
	result := merged.Done()
	result.Done()

	return result, used, nil
}

func (c *Calibrator) newRecorder() (*recorder.EstimateRecorder, error) {
	r, err := recorder.NewEstimateRecorder(c.ModelName, c.ModelID, len(c.items))
	if err != nil {
		return nil, err
	}
	if c.truth != nil {
		r.SetTruth(*c.truth)
	}
	return r, nil
}

func (c *Calibrator) reset() {
	c.rBuf = c.rBuf[:0]
}
