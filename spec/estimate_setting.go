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

// Package spec 定義估計任務的設定檔格式（EstimateSetting）。
//
// 設定檔（YAML/JSON）是 Ibslab 的 Single Source of Truth：
// 一份設定對應「一個模型 + 一份觀測資料集規模 + 一組估計參數」。
// Catalog 依 ModelID/ModelName 註冊設定，runtime 再依設定建出 Sampler。
package spec

import (
	"fmt"
	"strings"

	"github.com/zintix-labs/ibslab/errs"
)

// MID 模型編號（在同一個 Lab instance 內唯一）
type MID uint

// ModelKey 模型邏輯鍵：決定由哪個 builder 把設定建成可模擬的 Model
type ModelKey string

// EstimateSetting 一份完整的估計任務設定。
//
// 欄位語意：
//   - Items：觀測資料集大小（每個 item 會配一個 hit-probe）。
//   - Repeats：整體估計重複次數，重複結果會做平均以降低變異。
//   - MinLogP：提早中止地板。部分估計一旦被證明低於地板即放棄；
//     0（零值）代表未設地板（log-probability 合法值 ≤ 0，0 不具裁剪意義）。
//   - Parallel / BatchSize / Workers：平行估計開關、每個 item 在同步點之間
//     連續嘗試的次數上限、worker 數（0 = GOMAXPROCS）。
//   - MaxAttempts：單一 item 的嘗試上限（0 = 不設限）。這是安全閥而非預設行為：
//     hit 機率極小的 item 理論上可能永遠不收斂。
//   - Params：模型自由參數（由各 Model builder 以 DecodeParams 解出強型別）。
type EstimateSetting struct {
	ModelID     MID            `yaml:"model_id"     json:"model_id"`
	ModelName   string         `yaml:"model_name"   json:"model_name"`
	ModelKey    ModelKey       `yaml:"model_key"    json:"model_key"`
	Items       int            `yaml:"items"        json:"items"`
	Repeats     int            `yaml:"repeats"      json:"repeats"`
	MinLogP     float64        `yaml:"min_logp"     json:"min_logp"`
	Parallel    bool           `yaml:"parallel"     json:"parallel"`
	BatchSize   int            `yaml:"batch_size"   json:"batch_size"`
	Workers     int            `yaml:"workers"      json:"workers"`
	MaxAttempts int            `yaml:"max_attempts" json:"max_attempts"`
	Params      map[string]any `yaml:"params"       json:"params"`
}

// init 填入預設值並執行基本檢查。
func (es *EstimateSetting) init() error {
	if es.Repeats == 0 {
		es.Repeats = 1
	}
	if es.BatchSize == 0 {
		es.BatchSize = 100
	}
	return es.valid()
}

// valid 執行最基本的設定檔檢查，如需更多驗證可在此擴充。
func (es *EstimateSetting) valid() error {
	if strings.TrimSpace(es.ModelName) == "" {
		return errs.NewFatal("model_name required")
	}
	if es.ModelKey == "" {
		return errs.NewFatal(fmt.Sprintf("model_name: %s err:empty model_key", es.ModelName))
	}
	if es.Items < 1 {
		return errs.NewFatal(fmt.Sprintf("model_name: %s err:items must be >= 1", es.ModelName))
	}
	if es.Repeats < 1 {
		return errs.NewFatal(fmt.Sprintf("model_name: %s err:repeats must be >= 1", es.ModelName))
	}
	if es.MinLogP > 0 {
		return errs.NewFatal(fmt.Sprintf("model_name: %s err:min_logp must be <= 0", es.ModelName))
	}
	if es.BatchSize < 1 {
		return errs.NewFatal(fmt.Sprintf("model_name: %s err:batch_size must be >= 1", es.ModelName))
	}
	if es.Workers < 0 {
		return errs.NewFatal(fmt.Sprintf("model_name: %s err:workers must be >= 0", es.ModelName))
	}
	if es.MaxAttempts < 0 {
		return errs.NewFatal(fmt.Sprintf("model_name: %s err:max_attempts must be >= 0", es.ModelName))
	}
	return nil
}
