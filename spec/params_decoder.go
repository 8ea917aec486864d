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

package spec

import (
	"bytes"
	"errors"
	"io"

	"github.com/zintix-labs/ibslab/errs"
	"gopkg.in/yaml.v3"
)

// DecodeParams 把 EstimateSetting.Params（自由欄位 map）轉成模型自定義的強型別。
//
// 流程：先把 map 轉回 YAML bytes，再以嚴格模式 decode 進 out。
// KnownFields(true)：設定檔內多寫/拼錯的參數名會直接報錯，避免「參數沒生效」的沉默失敗。
func DecodeParams(es *EstimateSetting, out any) error {
	bs, err := yaml.Marshal(es.Params)
	if err != nil {
		return errs.Wrap(err, "spec.params_decoder : marshal failed")
	}
	dec := yaml.NewDecoder(bytes.NewReader(bs))
	dec.KnownFields(true)
	if err = dec.Decode(out); err != nil {
		// Params 為空時 decode 會回 EOF，視為「全部用零值」。
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errs.Wrap(err, "spec.params_decoder : decode failed")
	}
	return nil
}
