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

package ibslab

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/zintix-labs/ibslab/dto"
	"github.com/zintix-labs/ibslab/errs"
	"github.com/zintix-labs/ibslab/spec"
)

// Runtime 是對外服務期的 data-plane：每個已註冊模型一個 SamplerPool，
// 依請求的 model id 路由到對應的池。由 Lab.BuildRuntime 建立。
type Runtime struct {
	// build-time 來源（只讀引用）
	lab *Lab // 方便取 catalog/registry/corefactory 與共用一些 helper

	// data-plane：關鍵主池（每個模型一個 pool）
	pools map[spec.MID]*SamplerPool
	ids   []spec.MID // 固定順序，用於觀測/列舉（來自 cat.IDs()）

	// lifecycle
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	reason    atomic.Value // string

	// runtime 行為設定（一期先簡單，之後可擴展）
	poolSize int // 每個模型的池大小（BuildRuntime(n) 的 n）
}

func (rt *Runtime) Estimate(ctx context.Context, req *dto.EstimateRequest) (dto.EstimateResult, error) {
	select {
	case <-ctx.Done():
		// 如果通知取消
		return dto.EstimateResult{}, errs.NewWarn("estimate canceled/timeout: " + ctx.Err().Error())
	case <-rt.done:
		// done is the source of truth; keep a fast boolean for cheap reads/telemetry.
		rt.closed.Store(true)
		return dto.EstimateResult{}, errs.NewFatal("runtime closed: " + rt.ClosedReason())
	default:
	}

	sp, ok := rt.pools[req.ModelID]
	if !ok {
		return dto.EstimateResult{}, errs.NewWarn("model id not found")
	}

	// pool 自己會處理 done / close / rebuild / metrics
	return sp.Estimate(ctx, req)
}

// Pool 回傳指定模型的 SamplerPool（觀測用）。
func (rt *Runtime) Pool(id spec.MID) (*SamplerPool, bool) {
	sp, ok := rt.pools[id]
	return sp, ok
}

// IDs 回傳固定順序的模型 id 列表。
func (rt *Runtime) IDs() []spec.MID {
	out := make([]spec.MID, len(rt.ids))
	copy(out, rt.ids)
	return out
}

// PoolSize 回傳每個模型的池大小。
func (rt *Runtime) PoolSize() int {
	return rt.poolSize
}

// Metrics 收集所有池的觀測快照（依 ids 固定順序）。
func (rt *Runtime) Metrics() []SamplerPoolMetrics {
	out := make([]SamplerPoolMetrics, 0, len(rt.ids))
	for _, id := range rt.ids {
		if sp, ok := rt.pools[id]; ok {
			out = append(out, sp.Metrics())
		}
	}
	return out
}

// Close transitions the runtime into a closed state. It is safe to call multiple times.
// All pools are closed as well.
func (rt *Runtime) Close() {
	rt.closeWithReason("closed")
}

// closeWithReason closes the runtime and records the reason (written once).
func (rt *Runtime) closeWithReason(reason string) {
	rt.closeOnce.Do(func() {
		if reason == "" {
			reason = "closed"
		}
		rt.reason.Store(reason)
		rt.closed.Store(true)
		close(rt.done)
		for _, sp := range rt.pools {
			sp.Close()
		}
	})
}

// Closed reports whether the runtime has been closed.
func (rt *Runtime) Closed() bool {
	return rt.closed.Load()
}

func (rt *Runtime) ClosedReason() string {
	if v := rt.reason.Load(); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
