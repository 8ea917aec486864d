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

// Package ibslab 提供 Ibslab 引擎的「組裝入口（assembler）」與「運行入口（runtime entry）」。
//
// Ibslab 以 inverse binomial sampling（IBS）對「只能模擬、無法解析」的模型估計
// log-likelihood。你可以把它視為一個「可被後端/校準器使用的 runtime」，
// 它負責把下列三個必需的地基組裝在一起，並提供建立 Sampler 的入口：
//  1. Catalog：模型目錄（Single Source of Truth / SSOT），定義有哪些模型、各自對應的設定檔名稱（ConfigName）。
//  2. model.Registry：模型註冊表，提供「如何依據設定（ModelKey）建出可模擬模型」的 builders。
//  3. PRNGFactory：亂數核心工廠（PRNG factory），保證可重現（reproducible）與可審計（auditable）。
//
// 設計重點：
//   - Lab 本身不綁定任何「檔案路徑」概念：設定檔來源一律以 fs.FS 的形式注入。
//   - Lab 會持有一份 Catalog（你要跑哪一批模型/設定檔）與一份 Registry（你支援哪些模型）。
//   - Sampler 是對外提供 Estimate 的最小單位；模型開發者（統計學家）主要操作的是 sdk 內的型別與資料結構。
//
// 典型使用情境：
//   - 後端服務（HTTP）：由 Lab 建立 Runtime（每模型一個 SamplerPool），對外提供估計。
//   - 校準器（calib）：由 Lab 建立 Calibrator 檢驗估計器的無偏性與覆蓋率。
//
// 注意：此套引擎以估計 log-likelihood 為中心（Estimate -> Result），不是泛用模擬框架。
package ibslab

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/zintix-labs/ibslab/catalog"
	"github.com/zintix-labs/ibslab/errs"
	"github.com/zintix-labs/ibslab/sdk/core"
	"github.com/zintix-labs/ibslab/sdk/model"
	"github.com/zintix-labs/ibslab/spec"
)

// Configs 用來把一或多個設定檔來源（fs.FS）打包成 New() 需要的參數。
//
// 為什麼是 fs.FS：
//   - 你可以用 go:embed 把 configs 直接編進 binary（部署最穩定，不依賴工作目錄）。
//   - 也可以用 os.DirFS 在本機開發時讀取目錄。
//
// Lab 不解析「路徑」：它只依賴 fs.FS + ConfigName（檔名）來取得設定內容。
func Configs(cfgs ...fs.FS) []fs.FS {
	return cfgs
}

// Models 用來把一或多個模型註冊表（model.Registry）打包成 New() 需要的參數。
//
// 一個 Registry 代表「一個模型模組」提供的 builders 集合。
//
// New() 會把多個 registries 合併成單一 registry；若出現重複 ModelKey，會以 error 直接失敗（避免行為不確定）。
func Models(regs ...*model.Registry) []*model.Registry {
	return regs
}

// Lab 是「組裝器（assembler）」與「運行入口（runtime entry）」：
//
// 它把三個必需的地基組合起來：
//  1. Catalog：模型目錄（SSOT），定義有哪些模型、各自對應的設定檔名稱。
//  2. model.Registry：模型註冊表，提供「如何依據設定（ModelKey）建出可模擬模型」的 builders。
//  3. PRNGFactory：亂數核心工廠，保證可重現與可審計。
//
// 使用流程通常分成兩階段：
//   - 註冊/組裝階段（registration/build）：建立 catalog、合併 registries、檢查重複與缺漏。
//   - 執行階段（runtime）：依據模型 ID 產生 Sampler / Calibrator / Runtime。
//
// 重要設計原則：
//   - Catalog 的 ID 唯一性只保證在「同一個 Lab instance」內。
//   - 你要跑哪一批模型、哪一套設定檔，必須由 New() 的參數明確決定。
//   - runtime 一旦開始（例如已建立 Runtime 並對外服務），不建議再變更 Catalog/Registry。
//
// 實務例子（概念示意）：
//
//	//	lab, _ := ibslab.NewAuto(core.Default(), ibslab.Configs(cfgFS), ibslab.Models(reg))
//	//	s, _ := lab.NewSampler(1)
//	//	// s.Estimate(items) -> 取得估計結果（通常再轉成 DTO 回傳）
type Lab struct {
	cat *catalog.Catalog
	reg *model.Registry
	cf  core.PRNGFactory
	sum []catalog.Summary
}

// New 建立一個 Lab instance。
//
// 這是「組裝階段（registration/build）」的入口：
//   - 會建立 Catalog（同時做檔名存在性/重複性檢查，避免 runtime 才爆）。
//   - 會合併多個 Registry 成為單一 registry（重複 ModelKey 直接視為錯誤）。
//   - 會保存 PRNGFactory，確保由這個 Lab 建出來的 Sampler 在 RNG 行為上具有一致性。
//
// 參數要求（是合約的一部分）：
//   - cf 不能為 nil：沒有 RNG 工廠就無法建立可重現/可審計的核心。
//   - cfgs 至少一個：沒有設定檔來源，Catalog 無法解析 EstimateSetting。
//   - models 至少一個：沒有模型 builders，就算解析出設定也無法建出可模擬的模型。
func New(cf core.PRNGFactory, cfgs []fs.FS, models []*model.Registry) (*Lab, error) {
	if cf == nil {
		return nil, errs.NewFatal("prng factory required")
	}
	if len(cfgs) == 0 {
		return nil, errs.NewFatal("configs required")
	}
	if len(models) == 0 {
		return nil, errs.NewFatal("model registry required")
	}
	cata, err := catalog.New(cfgs...)
	if err != nil {
		return nil, err
	}
	reg, err := model.Merge(models...)
	if err != nil {
		return nil, err
	}
	lab := &Lab{
		cat: cata,
		reg: reg,
		cf:  cf,
	}
	return lab, nil
}

// NewAuto 建立一個直接進入執行階段的 Lab instance。
func NewAuto(cf core.PRNGFactory, cfgs []fs.FS, models []*model.Registry) (*Lab, error) {
	lab, err := New(cf, cfgs, models)
	if err != nil {
		return nil, err
	}
	if err := lab.RegisterAll(); err != nil {
		return nil, err
	}
	lab.Freeze()
	return lab, nil
}

func (p *Lab) Register(ents ...catalog.Entry) error {
	return p.cat.Register(ents...)
}

// RegisterAll
//
// 會掃描 catalog 持有的設定檔來源（fs.FS），把所有可辨識的設定檔（.yaml/.yml/.json）嘗試解析成
// *spec.EstimateSetting，並用設定檔內宣告的 ModelID/ModelName 產生對應的 catalog.Entry 來批次註冊。
//
// 行為特性（重要）：
//  1. Fail-fast：任何一個檔案讀取/解析/基本檢查失敗，都會立刻回傳 error（不會忽略、也不會繼續掃完）。
//  2. 原子性：只有當「全部檔案」都成功解析並通過基本檢查時，才會呼叫 Register(...) 一次性寫入。
//     因此不會出現只註冊了一半、導致 catalog 處於半完成狀態的情況。
//  3. 穩定性：會依檔名排序後再處理，確保行為 determinism（方便重現與除錯）。
//
// 注意：
//   - RegisterAll 只負責「把設定檔宣告的模型資訊放進 Catalog」。
//
// 模型實作（Builder / Registry）是否支援該 ModelKey，屬於後續 Lab 組裝/建取樣器時的責任。
func (p *Lab) RegisterAll() error {
	cfgs := p.cat.Cfg()
	sources := cfgs.Sources()
	if len(sources) == 0 {
		return errs.NewFatal("configs required")
	}

	entries := make([]catalog.Entry, 0, 64)
	seenID := map[spec.MID]string{}
	seenName := map[string]string{}

	for _, src := range sources {
		walkErr := fs.WalkDir(src, ".", func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path == "." {
					return nil
				}
				return errs.NewFatal(fmt.Sprintf("configs must be flat (no subdir): %q", path))
			}

			base := filepath.Base(path)
			if strings.Contains(path, "/") && path != base {
				return errs.NewFatal(fmt.Sprintf("configs must be flat (nested path): %q", path))
			}
			if strings.HasPrefix(base, ".") {
				return nil
			}

			ext := strings.ToLower(filepath.Ext(base))
			if ext != ".yaml" && ext != ".yml" && ext != ".json" {
				return nil
			}

			raw, rerr := fs.ReadFile(src, path)
			if rerr != nil {
				return errs.NewFatal(fmt.Sprintf("read config failed: %s", base))
			}

			var (
				es   *spec.EstimateSetting
				gerr error
			)
			switch ext {
			case ".yaml", ".yml":
				es, gerr = spec.GetEstimateSettingByYAML(raw)
			case ".json":
				es, gerr = spec.GetEstimateSettingByJSON(raw)
			default:
				return errs.NewFatal(fmt.Sprintf("unsupported config format: %q", base))
			}
			if gerr != nil {
				return errs.NewFatal(fmt.Sprintf("parse estimate setting failed: %s", base))
			}

			name := strings.TrimSpace(es.ModelName)
			if name == "" {
				return errs.NewFatal(fmt.Sprintf("model name required: %s", base))
			}

			id := es.ModelID
			if prev, ok := seenID[id]; ok {
				return errs.NewFatal(fmt.Sprintf("duplicate model id: %d (config=%s and %s)", id, prev, base))
			}
			if _, ok := p.cat.GetByID(id); ok {
				return errs.NewFatal(fmt.Sprintf("model id already registered: %d (config=%s)", id, base))
			}
			seenID[id] = base

			nameKey := strings.ToLower(name)
			if prev, ok := seenName[nameKey]; ok {
				return errs.NewFatal(fmt.Sprintf("duplicate model name: %s (config=%s and %s)", nameKey, prev, base))
			}
			if _, ok := p.cat.GetByName(name); ok {
				return errs.NewFatal(fmt.Sprintf("model name already registered: %s (config=%s)", name, base))
			}
			seenName[nameKey] = base

			if es.ModelKey == "" {
				return errs.NewFatal(fmt.Sprintf("model key required: %s", base))
			}
			if !p.reg.IsExist(es.ModelKey) {
				return errs.NewFatal(fmt.Sprintf("model not registered: model_key=%s (config=%s)", es.ModelKey, base))
			}

			entries = append(entries, catalog.Entry{
				MID:        id,
				Name:       name,
				ConfigName: base,
			})
			return nil
		})
		if walkErr != nil {
			return walkErr
		}
	}

	if len(entries) == 0 {
		return errs.NewFatal("no config files found to register")
	}

	return p.cat.Register(entries...)
}

func (p *Lab) Freeze() {
	p.cat.Freeze()
}

func (p *Lab) EntryById(id spec.MID) (catalog.Entry, bool) {
	return p.cat.GetByID(id)
}

func (p *Lab) EntryByName(name string) (catalog.Entry, bool) {
	return p.cat.GetByName(name)
}

func (p *Lab) IDs() []spec.MID {
	return p.cat.IDs()
}

func (p *Lab) All() []catalog.Entry {
	return p.cat.All()
}

func (p *Lab) Summary() ([]catalog.Summary, error) {
	if !p.cat.IsFrozen() {
		return nil, errs.NewFatal("catalog is not frozen yet")
	}
	if p.sum != nil {
		return p.sum, nil
	}
	ids := p.cat.IDs()
	cs := make([]catalog.Summary, 0, len(ids))
	for _, id := range ids {
		es, err := p.cat.EstimateSettingById(id)
		if err != nil {
			return nil, errs.NewFatal("parse estimate setting failed")
		}
		s := catalog.Summary{
			MID:   id,
			Name:  es.ModelName,
			Model: es.ModelKey,
			Items: es.Items,
		}
		cs = append(cs, s)
	}
	p.sum = cs
	return p.sum, nil
}

// NewSampler 依據 Catalog 內的模型 ID 建立一台 Sampler。
//
// 行為：
//  1. 由 Catalog 取得對應的 EstimateSetting（通常來自 fs.FS 內的 YAML/JSON）。
//  2. 以 PRNGFactory 產生 RNG 核心（seed 由 crypto/rand 產生）。
//  3. 透過 Registry 依據 EstimateSetting 內的 ModelKey 建出可模擬的模型。
//
// 注意：seed 會被記錄在 Sampler 內（initseed），用於追溯/重現；真正的可審計能力以 Core 的 Snapshot/Restore 合約為準。
func (p *Lab) NewSampler(id spec.MID) (*Sampler, error) {
	if !p.cat.IsFrozen() {
		return nil, errs.NewFatal("catalog is not frozen yet")
	}
	es, err := p.cat.EstimateSettingById(id)
	if err != nil {
		return nil, err
	}
	return newSampler(es, p.reg, p.cf)
}

// NewSamplerWithSeed 與 NewSampler 相同，但由呼叫端指定初始 seed。
//
// 使用情境：
//   - 可重現的測試：同一份設定 + 同一個 seed，應產生一致的隨機序列（取決於 PRNG 實作）。
//
// 注意：seed 只是「出生入口」。若要在任意時間點完整重現，請從 seed 重放（rewind），而不是從快照續跑。
func (p *Lab) NewSamplerWithSeed(id spec.MID, seed int64) (*Sampler, error) {
	if !p.cat.IsFrozen() {
		return nil, errs.NewFatal("catalog is not frozen yet")
	}
	es, err := p.cat.EstimateSettingById(id)
	if err != nil {
		return nil, err
	}
	return newSamplerWithSeed(es, p.reg, p.cf, seed)
}

func (p *Lab) NewSamplerByJSON(raw []byte, seed int64) (*Sampler, error) {
	if !p.cat.IsFrozen() {
		return nil, errs.NewFatal("catalog is not frozen yet")
	}
	cfg, err := spec.GetEstimateSettingByJSON(raw)
	if err != nil {
		return nil, err
	}
	if err := p.validCfg(cfg); err != nil {
		return nil, err
	}
	return newSamplerWithSeed(cfg, p.reg, p.cf, seed)
}

func (p *Lab) NewSamplerByYAML(raw []byte, seed int64) (*Sampler, error) {
	if !p.cat.IsFrozen() {
		return nil, errs.NewFatal("catalog is not frozen yet")
	}
	cfg, err := spec.GetEstimateSettingByYAML(raw)
	if err != nil {
		return nil, err
	}
	if err := p.validCfg(cfg); err != nil {
		return nil, err
	}
	return newSamplerWithSeed(cfg, p.reg, p.cf, seed)
}

func (p *Lab) validCfg(cfg *spec.EstimateSetting) error {
	ent, ok := p.cat.GetByID(cfg.ModelID)
	if !ok {
		return errs.NewWarn("mid not exist")
	}
	ent2, ok := p.cat.GetByName(cfg.ModelName)
	if !ok {
		return errs.NewWarn("model name not exist")
	}
	if ent.MID != ent2.MID {
		return errs.NewWarn("model id is not matched model name")
	}
	if !p.reg.IsExist(cfg.ModelKey) {
		return errs.NewWarn("model logic not exist")
	}
	return nil
}

func (p *Lab) NewCalibrator(id spec.MID) (*Calibrator, error) {
	if !p.cat.IsFrozen() {
		return nil, errs.NewFatal("catalog is not frozen yet")
	}
	es, err := p.cat.EstimateSettingById(id)
	if err != nil {
		return nil, err
	}
	return newCalibrator(es, p.reg, p.cf)
}

func (p *Lab) NewCalibratorWithSeed(id spec.MID, seed int64) (*Calibrator, error) {
	if !p.cat.IsFrozen() {
		return nil, errs.NewFatal("catalog is not frozen yet")
	}
	es, err := p.cat.EstimateSettingById(id)
	if err != nil {
		return nil, err
	}
	return newCalibratorWithSeed(es, p.reg, p.cf, seed)
}

func (p *Lab) NewCalibratorByJSON(raw []byte, seed int64) (*Calibrator, error) {
	if !p.cat.IsFrozen() {
		return nil, errs.NewFatal("catalog is not frozen yet")
	}
	cfg, err := spec.GetEstimateSettingByJSON(raw)
	if err != nil {
		return nil, err
	}
	if err := p.validCfg(cfg); err != nil {
		return nil, err
	}
	return newCalibratorWithSeed(cfg, p.reg, p.cf, seed)
}

func (p *Lab) NewCalibratorByYAML(raw []byte, seed int64) (*Calibrator, error) {
	if !p.cat.IsFrozen() {
		return nil, errs.NewFatal("catalog is not frozen yet")
	}
	cfg, err := spec.GetEstimateSettingByYAML(raw)
	if err != nil {
		return nil, err
	}
	if err := p.validCfg(cfg); err != nil {
		return nil, err
	}
	return newCalibratorWithSeed(cfg, p.reg, p.cf, seed)
}

func (p *Lab) BuildRuntime(poolSize int) (*Runtime, error) {
	// 1. 進入 runtime 前，catalog 必須 Freeze
	p.Freeze()

	ids := p.cat.IDs()
	if len(ids) == 0 {
		return nil, errs.NewFatal("no models registered")
	}

	rt := &Runtime{
		lab:      p,
		pools:    make(map[spec.MID]*SamplerPool, len(ids)),
		ids:      ids,
		done:     make(chan struct{}),
		poolSize: max(1, poolSize),
	}
	rt.reason.Store("")

	// 2. 先全建好（fail-fast + cleanup）
	for _, id := range ids {
		es, err := p.cat.EstimateSettingById(id)
		if err != nil {
			return nil, err
		}

		seed, err := cryptoSeed()
		if err != nil {
			return nil, err
		}
		sp, err := newSamplerPool(rt.poolSize, es, p.reg, p.cf, seed)
		if err != nil {
			return nil, err
		}
		rt.pools[id] = sp
	}
	return rt, nil
}
