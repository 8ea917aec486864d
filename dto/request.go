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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/zintix-labs/ibslab/errs"
	"github.com/zintix-labs/ibslab/spec"
)

type EstimateRequest struct {
	UID       string   `json:"uid"`             // 唯一識別碼
	ModelName string   `json:"model"`           // 要估計的模型
	ModelID   spec.MID `json:"mid"`             // 模型編號
	Items     []int    `json:"items,omitempty"` // 觀測資料集（省略時由模型自行生成 NItems 筆合成資料）
	NItems    int      `json:"n_items"`         // 合成資料筆數（Items 缺省時生效；0 = 走設定檔的 items）
	Seed      *int64   `json:"seed,omitempty"`  // 可選：指定 seed 以重現估計（缺省由服務端隨機）
	// Contract（避免雙重語意）：
	//   - Items 有值時 NItems 必須省略（或為 0）；兩者同時指定視為 request 格式錯誤。
	//   - Items 為觀測值序列，合法值由各模型定義；合法性由上層（Sampler）檢查。
}

// DecodeEstimateRequest 會把 HTTP 請求解碼成 EstimateRequest。
//
// 支援：
//   - GET：從 query string 讀取參數（uid/model/mid/n_items/seed）。
//     注意：GET 無法攜帶觀測資料集；要帶 items 請使用 POST。
//   - POST：從 JSON body 反序列化（支援 items）。
//
// 注意：
//   - 這裡只負責「解碼（decode）」與基本型別轉換，不做任何模型合法性校驗；
//     合法性（例如該 MID 是否存在、items 值域）應由上層（Sampler/Runtime）決定。
//   - 為避免過大 body 影響服務，POST 會對 body 做大小限制（預設 4MiB，觀測資料集可以很大）。
//   - POST 會開啟 DisallowUnknownFields()，對未知欄位採用嚴格拒絕，以避免靜默丟資料。
func DecodeEstimateRequest(r *http.Request) (*EstimateRequest, error) {
	if r == nil {
		return nil, errs.NewWarn("nil request")
	}

	req := new(EstimateRequest)

	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		req.UID = q.Get("uid")
		req.ModelName = q.Get("model")

		if s := q.Get("mid"); s != "" {
			u, err := strconv.ParseUint(s, 10, 0)
			if err != nil {
				return nil, errs.NewWarn(fmt.Sprintf("invalid mid: %v", err))
			}
			req.ModelID = spec.MID(u)
		}

		if s := q.Get("n_items"); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil {
				return nil, errs.NewWarn(fmt.Sprintf("invalid n_items: %v", err))
			}
			req.NItems = v
		}

		if s := q.Get("seed"); s != "" {
			v, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, errs.NewWarn(fmt.Sprintf("invalid seed: %v", err))
			}
			req.Seed = &v
		}

		return req, nil

	case http.MethodPost:
		// 防止 body 過大（預設 4MiB）
		const maxBody = 4 << 20
		body := io.LimitReader(r.Body, maxBody)
		dec := json.NewDecoder(body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(req); err != nil {
			return nil, fmt.Errorf("invalid json: %w", err)
		}
		return req, nil

	default:
		return nil, fmt.Errorf("method not allowed")
	}
}

// Valid 檢查 request 的內部一致性（不涉及模型查表）。
func (er *EstimateRequest) Valid() error {
	if len(er.Items) != 0 && er.NItems != 0 {
		return errs.NewWarn("items and n_items are mutually exclusive")
	}
	if er.NItems < 0 {
		return errs.NewWarn("n_items must be >= 0")
	}
	return nil
}
