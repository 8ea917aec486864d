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
	"github.com/zintix-labs/ibslab/sdk/sampler"
	"github.com/zintix-labs/ibslab/spec"
)

// ============================================================
// ** 註冊 **
// ============================================================

func init() {
	key := "demo_categorical"
	if err := Reg.Register(spec.ModelKey(key), buildCategorical); err != nil {
		log.Fatalf("%s register failed: %v", key, err)
	}
}

// ============================================================
// ** Categorical 模型 **
// ============================================================

// 權重總和在此以下用 LUT，以上用 AliasTable（參考 sdk/sampler 的建議值）
const lutLimit = 100_000

// categorical 多類別模型：觀測值為類別索引 [0, K)。
//
// 資料由 DataWeights 抽樣、模擬用 ModelWeights——兩組權重分開，
// 可在校準時製造「模型≠資料」的情境。
// 具解析解（實作 Exact）：log p(obs) = log(w[obs]/total)。
//
// 抽樣器依權重總和自動選擇 LUT 或 AliasTable。
type categorical struct {
	params    *categoricalParams
	dataPick  picker
	modelPick picker
	logp      []float64 // 模型各類別的 log-機率（解析解）
}

type categoricalParams struct {
	DataWeights  []int `yaml:"data_weights"`
	ModelWeights []int `yaml:"model_weights"`
}

// picker 抽象 sdk/sampler 的兩種 O(1) 加權抽樣結構。
type picker interface {
	Pick(c *core.Core) int
}

func buildCategorical(es *spec.EstimateSetting) (model.Model, error) {
	p := new(categoricalParams)
	if err := spec.DecodeParams(es, p); err != nil {
		return nil, err
	}
	if len(p.DataWeights) < 2 || len(p.ModelWeights) < 2 {
		return nil, errs.Fatalf("model_name: %s err:weights need at least 2 categories", es.ModelName)
	}
	if len(p.DataWeights) != len(p.ModelWeights) {
		return nil, errs.Fatalf("model_name: %s err:data/model weights length mismatch %d vs %d",
			es.ModelName, len(p.DataWeights), len(p.ModelWeights))
	}

	dataTotal, err := weightTotal(es, p.DataWeights)
	if err != nil {
		return nil, err
	}
	modelTotal, err := weightTotal(es, p.ModelWeights)
	if err != nil {
		return nil, err
	}

	logp := make([]float64, len(p.ModelWeights))
	for i, w := range p.ModelWeights {
		if w == 0 {
			// 模型機率為 0 的類別：觀測到它代表 log p = -inf
			logp[i] = math.Inf(-1)
			continue
		}
		logp[i] = math.Log(float64(w) / float64(modelTotal))
	}

	return &categorical{
		params:    p,
		dataPick:  newPicker(p.DataWeights, dataTotal),
		modelPick: newPicker(p.ModelWeights, modelTotal),
		logp:      logp,
	}, nil
}

func weightTotal(es *spec.EstimateSetting, weights []int) (int, error) {
	total := 0
	for _, w := range weights {
		if w < 0 {
			return 0, errs.Fatalf("model_name: %s err:negative weight %d", es.ModelName, w)
		}
		total += w
	}
	if total == 0 {
		return 0, errs.Fatalf("model_name: %s err:all weights are zero", es.ModelName)
	}
	return total, nil
}

// newPicker 依權重總和選擇建表方式。前置檢查已排除會讓建表 panic 的輸入。
func newPicker(weights []int, total int) picker {
	if total <= lutLimit {
		return sampler.BuildLUT(weights)
	}
	return sampler.BuildAliasTable(weights)
}

func (m *categorical) Items(rng *core.Core, n int) []int {
	items := make([]int, n)
	for i := range items {
		items[i] = m.dataPick.Pick(rng)
	}
	return items
}

func (m *categorical) Probe(obs int, rng *core.Core) ibs.Probe {
	return ibs.ProbeFunc(func() (bool, error) {
		return m.modelPick.Pick(rng) == obs, nil
	})
}

func (m *categorical) TrueLogP(obs int) float64 {
	if obs < 0 || obs >= len(m.logp) {
		return math.Inf(-1)
	}
	return m.logp[obs]
}
