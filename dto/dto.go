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

package dto

import (
	"math"

	"github.com/zintix-labs/ibslab/corefmt"
	"github.com/zintix-labs/ibslab/sdk/ibs"
	"github.com/zintix-labs/ibslab/spec"
)

type EstimateResult struct {
	ModelName string   `json:"model"`               // 模型名稱
	ModelID   spec.MID `json:"mid"`                 // 模型編號
	NItems    int      `json:"n_items"`             // 實際估計的觀測筆數
	LogP      float64  `json:"logp"`                // log-likelihood 估計值（提早中止時 = 地板值）
	Std       *float64 `json:"std"`                 // 估計標準差；null = 無定義（提早中止）
	Converged bool     `json:"converged"`           // 是否所有 item 收斂
	NCalls    int64    `json:"n_calls"`             // 模擬呼叫總數
	TrueLogP  *float64 `json:"true_logp,omitempty"` // 解析解（模型支援時才有；校準對照用）
	Seed      int64    `json:"seed"`                // 本次估計的出生 seed（重現入口）
	CoreB64U  string   `json:"core_b64u,omitempty"` // 估計結束時的 Core 快照（Base64URL；審計存證）
	UsedMs    int64    `json:"used_ms"`             // 估計耗時（毫秒）
}

// NewEstimateResultDTO 把內部估計結果轉成對外 DTO。
//
// NaN 不能進 JSON（encoding/json 會直接報錯），所以 Std 以指標承載：
// 未收斂時為 null，讓呼叫端拿到明確的「無定義」而不是被編碼器拒絕。
func NewEstimateResultDTO(name string, id spec.MID, nItems int, res ibs.Result, seed int64, coreSnap []byte, usedMs int64) EstimateResult {
	out := EstimateResult{
		ModelName: name,
		ModelID:   id,
		NItems:    nItems,
		LogP:      res.LogP,
		Converged: res.Converged,
		NCalls:    res.NCalls,
		Seed:      seed,
		UsedMs:    usedMs,
	}
	if res.Converged && !math.IsNaN(res.Std) {
		std := res.Std
		out.Std = &std
	}
	if len(coreSnap) != 0 {
		out.CoreB64U = corefmt.EncodeBase64URL(coreSnap)
	}
	return out
}

// WithTruth 附掛解析解對照值（僅在模型實作 Exact 時呼叫）。
func (er EstimateResult) WithTruth(trueLogP float64) EstimateResult {
	er.TrueLogP = &trueLogP
	return er
}
