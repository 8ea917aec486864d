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

package demo_models

import (
	"log"
	"math"

	"github.com/zintix-labs/ibslab/errs"
	"github.com/zintix-labs/ibslab/sdk/core"
	"github.com/zintix-labs/ibslab/sdk/ibs"
	"github.com/zintix-labs/ibslab/sdk/model"
	"github.com/zintix-labs/ibslab/spec"
)

// ============================================================
// ** 註冊 **
// ============================================================

func init() {
	key := "demo_bernoulli"
	if err := Reg.Register(spec.ModelKey(key), buildBernoulli); err != nil {
		log.Fatalf("%s register failed: %v", key, err)
	}
}

// ============================================================
// ** Bernoulli 模型 **
// ============================================================

// bernoulli 最小的可模擬模型：觀測值為 0/1。
//
// 資料由 DataP 生成、模擬用 ModelP——兩個參數分開，
// 才能在校準時製造「模型≠資料」的情境並檢查估計是否跟著變差。
// 具解析解（實作 Exact），校準報告可對比 ground truth。
type bernoulli struct {
	params *bernoulliParams
}

type bernoulliParams struct {
	DataP  float64 `yaml:"data_p"`
	ModelP float64 `yaml:"model_p"`
}

func buildBernoulli(es *spec.EstimateSetting) (model.Model, error) {
	p := new(bernoulliParams)
	if err := spec.DecodeParams(es, p); err != nil {
		return nil, err
	}
	if p.DataP <= 0 || p.DataP >= 1 {
		return nil, errs.Fatalf("model_name: %s err:data_p must be in (0,1), got %v", es.ModelName, p.DataP)
	}
	if p.ModelP <= 0 || p.ModelP >= 1 {
		return nil, errs.Fatalf("model_name: %s err:model_p must be in (0,1), got %v", es.ModelName, p.ModelP)
	}
	return &bernoulli{params: p}, nil
}

func (b *bernoulli) Items(rng *core.Core, n int) []int {
	items := make([]int, n)
	for i := range items {
		if rng.Bernoulli(b.params.DataP) {
			items[i] = 1
		}
	}
	return items
}

func (b *bernoulli) Probe(obs int, rng *core.Core) ibs.Probe {
	p := b.params.ModelP
	return ibs.ProbeFunc(func() (bool, error) {
		sim := 0
		if rng.Bernoulli(p) {
			sim = 1
		}
		return sim == obs, nil
	})
}

func (b *bernoulli) TrueLogP(obs int) float64 {
	if obs == 1 {
		return math.Log(b.params.ModelP)
	}
	return math.Log(1 - b.params.ModelP)
}
