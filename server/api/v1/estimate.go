package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/zintix-labs/ibslab"
	"github.com/zintix-labs/ibslab/dto"
	"github.com/zintix-labs/ibslab/errs"
	"github.com/zintix-labs/ibslab/server/httperr"
	"github.com/zintix-labs/ibslab/server/svrcfg"
)

func (c *EstimateHandler) Estimate(w http.ResponseWriter, q *http.Request) {
	// 請求方法、結構體校驗
	if q.Method != http.MethodGet && q.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	req, err := dto.DecodeEstimateRequest(q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// 請求解析完成，設置超時 context
	// 估計可能長跑（資料集大、hit 機率低），超時放得比一般 API 寬
	ctx := q.Context()
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	// 開始估計
	result, err := c.rt.Estimate(ctx, req)
	if err != nil {
		httperr.Errs(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		httperr.Errs(w, err)
		return
	}
}

// Metrics 回傳所有 SamplerPool 的觀測快照。
func (c *EstimateHandler) Metrics(w http.ResponseWriter, q *http.Request) {
	if q.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(c.rt.Metrics()); err != nil {
		httperr.Errs(w, err)
		return
	}
}

// ============================================================
// ** EstimateHandler **
// ============================================================

type EstimateHandler struct {
	rt *ibslab.Runtime
}

func NewEstimateHandler(sCfg *svrcfg.SvrCfg) (*EstimateHandler, error) {
	rt, err := sCfg.Lab.BuildRuntime(sCfg.PoolSize)
	if err != nil {
		return nil, errs.Wrap(err, "build estimate handler error")
	}
	return &EstimateHandler{rt: rt}, nil
}
