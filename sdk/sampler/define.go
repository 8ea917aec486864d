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

// Package sampler 提供一系列高效能的加權抽樣演算法與工具
//
// 本檔案 (define.go) 定義了 sampler 套件中通用的泛型約束 (Generic Constraints)
//
// 權重一律以整數表示（設定檔中的 weights 欄位），
// 浮點權重請先由呼叫端 scale 成整數再建表，避免浮點精度影響抽樣分佈。

package sampler

// Integers 定義所有底層實現為整數型別的集合
type Integers interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}
