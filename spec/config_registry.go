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
	"encoding/json"

	"github.com/zintix-labs/ibslab/errs"
	"gopkg.in/yaml.v3"
)

// GetEstimateSettingByYAML
// 會讀取 YAML 設定、填入預設值並執行基本檢查後回傳
func GetEstimateSettingByYAML(data []byte) (*EstimateSetting, error) {
	es := &EstimateSetting{}
	if err := yaml.Unmarshal(data, es); err != nil {
		return nil, errs.Wrap(err, "failed to unmarshall yaml")
	}

	// 設定檔初始化
	if err := es.init(); err != nil {
		return nil, errs.Wrap(err, "estimate setting initialized err")
	}

	return es, nil
}

// GetEstimateSettingByJSON
// 會讀取 Json 設定、填入預設值並執行基本檢查後回傳
func GetEstimateSettingByJSON(data []byte) (*EstimateSetting, error) {
	es := &EstimateSetting{}
	if err := json.Unmarshal(data, es); err != nil {
		return nil, errs.Wrap(err, "can not unmarshall json byte")
	}

	// 設定檔初始化
	if err := es.init(); err != nil {
		return nil, errs.Wrap(err, "estimate setting initialized err")
	}

	return es, nil
}
