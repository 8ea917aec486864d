package v1

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"net/http"
	"strconv"

	"github.com/zintix-labs/ibslab"
	"github.com/zintix-labs/ibslab/errs"
	"github.com/zintix-labs/ibslab/server/httperr"
	"github.com/zintix-labs/ibslab/spec"
	"github.com/zintix-labs/ibslab/stats"
)

type CalibHandler struct {
	Lab *ibslab.Lab
}

func NewCalibHandler(lab *ibslab.Lab) (*CalibHandler, error) {
	return &CalibHandler{Lab: lab}, nil
}

func (ch *CalibHandler) Calib(w http.ResponseWriter, q *http.Request) {
	// 內部結構 不影響外部 也不被外部使用
	type CalibRequestBody struct {
		MID     spec.MID `json:"mid"`
		Trials  int      `json:"trials"`
		Workers int      `json:"workers"`
		Seed    *int64   `json:"seed,omitempty"`
	}
	// 內部結構 不影響外部 也不被外部使用
	type CalibResponse struct {
		Report   *stats.CalibReport `json:"report"`
		Seed     int64              `json:"seed"`
		UsedTime int64              `json:"used_ms"`
	}
	// ---
	req := new(CalibRequestBody)
	if q.Method != http.MethodGet && q.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if q.Method == http.MethodGet {
		// mid
		if s := q.URL.Query().Get("mid"); s != "" {
			u, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				httperr.Errs(w, errs.NewWarn("mid must be non-negative integer"))
				return
			}
			req.MID = spec.MID(u)
		} else {
			// 直接空值
			httperr.Errs(w, errs.NewWarn("mid is required"))
			return
		}

		// trials
		if m := q.URL.Query().Get("trials"); m != "" {
			u, err := strconv.ParseInt(m, 10, 64)
			if err != nil {
				httperr.Errs(w, errs.NewWarn("trials must be integer"))
				return
			}
			req.Trials = int(u)
		} else {
			httperr.Errs(w, errs.NewWarn("trials is required"))
			return
		}

		// workers
		if r := q.URL.Query().Get("workers"); r != "" {
			u, err := strconv.ParseInt(r, 10, 64)
			if err != nil {
				httperr.Errs(w, errs.NewWarn("workers must be integer"))
				return
			}
			req.Workers = int(u)
		}

		// seed
		if s := q.URL.Query().Get("seed"); s != "" {
			u, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				httperr.Errs(w, errs.NewWarn("seed must be int64"))
				return
			}
			v := u
			req.Seed = &v
		}
	}
	if q.Method == http.MethodPost {
		if err := json.NewDecoder(q.Body).Decode(req); err != nil {
			httperr.Errs(w, errs.NewWarn("invalid json:"+err.Error()))
			return
		}
	}
	// 業務檢驗
	_, ok := ch.Lab.EntryById(req.MID)
	if !ok {
		httperr.Errs(w, errs.NewWarn("mid not found"))
		return
	}
	if req.Trials < 1 || req.Trials > 100000 {
		httperr.Errs(w, errs.NewWarn("trials must be between 1 to 100,000"))
		return
	}
	if req.Workers < 0 {
		httperr.Errs(w, errs.NewWarn("workers must be non-negative integer"))
		return
	}
	if req.Seed == nil {
		rnd, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
		if err != nil {
			httperr.Errs(w, errs.NewWarn("seed generate failed"))
			return
		}
		v := rnd.Int64()
		req.Seed = &v
	}
	cal, err := ch.Lab.NewCalibratorWithSeed(req.MID, *req.Seed)
	if err != nil {
		// 這裡的錯誤是來自ibslab 尊重錯誤分級
		httperr.Errs(w, errs.Wrap(err, fmt.Sprintf("build calibrator err: %d", req.MID)))
		return
	}

	var rep *stats.CalibReport
	var used int64
	if req.Workers > 1 {
		r, u, cerr := cal.RunMP(req.Trials, req.Workers, false)
		if cerr != nil {
			httperr.Errs(w, errs.Wrap(cerr, "calibrate err"))
			return
		}
		rep, used = r, u.Milliseconds()
	} else {
		r, u, cerr := cal.Run(req.Trials, false)
		if cerr != nil {
			httperr.Errs(w, errs.Wrap(cerr, "calibrate err"))
			return
		}
		rep, used = r, u.Milliseconds()
	}

	resp := CalibResponse{
		Report:   rep,
		Seed:     *req.Seed,
		UsedTime: used,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// CalibByCfg 傳入 JSON 設定格式 以及希望重跑的 trial 數
func (ch *CalibHandler) CalibByCfg(w http.ResponseWriter, r *http.Request) {
	type CalibRequestByJson struct {
		Trials          int             `json:"trials"`
		Workers         int             `json:"workers"`
		EstimateSetting json.RawMessage `json:"cfg"`
		Seed            *int64          `json:"seed,omitempty"`
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// 1. decode request
	req := new(CalibRequestByJson)
	r.Body = http.MaxBytesReader(w, r.Body, 5<<20) // 5MB
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		httperr.Errs(w, errs.Wrap(err, "json decode failed"))
		return
	}

	// 2. valid trials
	if req.Trials < 1 || req.Trials > 100000 {
		httperr.Errs(w, errs.NewWarn("trials must be between 1 to 100,000"))
		return
	}
	if req.Workers < 0 {
		httperr.Errs(w, errs.NewWarn("workers must be non-negative integer"))
		return
	}
	if req.Seed == nil {
		rnd, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
		if err != nil {
			httperr.Errs(w, errs.NewWarn("seed generate failed"))
			return
		}
		v := rnd.Int64()
		req.Seed = &v
	}

	// 3. NewCalibrator
	cal, err := ch.Lab.NewCalibratorByJSON(req.EstimateSetting, *req.Seed)
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	var rep *stats.CalibReport
	if req.Workers > 1 {
		rep, _, err = cal.RunMP(req.Trials, req.Workers, false)
	} else {
		rep, _, err = cal.Run(req.Trials, false)
	}
	if err != nil {
		httperr.Errs(w, err)
		return
	}

	// 4. 回傳Json
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rep)
}
