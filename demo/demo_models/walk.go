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
	"gonum.org/v1/gonum/stat/distuv"
)

// ============================================================
// ** 註冊 **
// ============================================================

func init() {
	key := "demo_randomwalk"
	if err := Reg.Register(spec.ModelKey(key), buildWalk); err != nil {
		log.Fatalf("%s register failed: %v", key, err)
	}
}

// ============================================================
// ** 隨機漫步模型 **
// ============================================================

// walk 帶漂移的 ±1 隨機漫步，觀測值 = 終點是否在正側（0/1）。
//
// 單步上行機率 pUp = 0.5 + 0.5·tanh(drift)。Steps 必須為奇數（終點不會落在 0，
// 觀測沒有第三種結果）。終點在正側 ⇔ 上行步數 > Steps/2，
// 所以解析解是 Binomial(Steps, pUp) 的 survival function——模型本身只做模擬，
// Exact 只給校準對照用。
type walk struct {
	params *walkParams
	pData  float64
	pModel float64
}

type walkParams struct {
	DataDrift  float64 `yaml:"data_drift"`
	ModelDrift float64 `yaml:"model_drift"`
	Steps      int     `yaml:"steps"`
}

func pUp(drift float64) float64 {
	return 0.5 + 0.5*math.Tanh(drift)
}

func buildWalk(es *spec.EstimateSetting) (model.Model, error) {
	p := new(walkParams)
	if err := spec.DecodeParams(es, p); err != nil {
		return nil, err
	}
	if p.Steps < 1 || p.Steps%2 == 0 {
		return nil, errs.Fatalf("model_name: %s err:steps must be a positive odd number, got %d", es.ModelName, p.Steps)
	}
	return &walk{
		params: p,
		pData:  pUp(p.DataDrift),
		pModel: pUp(p.ModelDrift),
	}, nil
}

func (w *walk) simulate(rng *core.Core, p float64) int {
	pos := 0
	for s := 0; s < w.params.Steps; s++ {
		pos += rng.Sign(p)
	}
	if pos > 0 {
		return 1
	}
	return 0
}

func (w *walk) Items(rng *core.Core, n int) []int {
	items := make([]int, n)
	for i := range items {
		items[i] = w.simulate(rng, w.pData)
	}
	return items
}

func (w *walk) Probe(obs int, rng *core.Core) ibs.Probe {
	return ibs.ProbeFunc(func() (bool, error) {
		return w.simulate(rng, w.pModel) == obs, nil
	})
}

func (w *walk) TrueLogP(obs int) float64 {
	bin := distuv.Binomial{N: float64(w.params.Steps), P: w.pModel}
	pPos := bin.Survival(math.Floor(float64(w.params.Steps) / 2))
	if obs == 1 {
		return math.Log(pPos)
	}
	return math.Log(1 - pPos)
}
