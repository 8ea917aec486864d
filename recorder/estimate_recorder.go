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

package recorder

import (
	"fmt"
	"math"

	"github.com/zintix-labs/ibslab/errs"
	"github.com/zintix-labs/ibslab/sdk/ibs"
	"github.com/zintix-labs/ibslab/spec"
	"github.com/zintix-labs/ibslab/stats"
)

// EstimateRecorder 估計紀錄員
//
// EstimateRecorder 負責紀錄每個 trial 的估計結果，並透過 Done 輸出校準報表。
// 紀錄過程只累積和/平方和/命中數（不保存整條 trial 序列），
// 因此可以被平行 worker 各持一份、最後用 MergeEstimateRecorder 合併。
type EstimateRecorder struct {
	ModelName string
	ModelID   spec.MID
	Items     int

	trials     int
	truncated  int
	totalCalls int64

	logpSum   float64
	logpSqSum float64
	stdSum    float64

	trueLogP *float64
	oneHits  int
	twoHits  int
}

func NewEstimateRecorder(name string, id spec.MID, items int) (*EstimateRecorder, error) {
	r := new(EstimateRecorder)

	if name == "" {
		return r, errs.NewFatal("model name required")
	}
	if items < 1 {
		return r, errs.NewFatal(fmt.Sprintf("items err %d", items))
	}
	// 通過valid
	r.ModelName = name
	r.ModelID = id
	r.Items = items
	return r, nil
}

// SetTruth 設定解析解對照值；設定後 Record 會同時累積 ±1σ/±2σ 覆蓋命中數。
func (r *EstimateRecorder) SetTruth(trueLogP float64) {
	r.trueLogP = &trueLogP
}

// Record 紀錄一個 trial 的估計結果。非 goroutine-safe：每個 worker 各持一份。
func (r *EstimateRecorder) Record(res ibs.Result) {
	r.trials++
	r.totalCalls += res.NCalls
	if !res.Converged {
		r.truncated++
		return
	}
	r.logpSum += res.LogP
	r.logpSqSum += res.LogP * res.LogP
	r.stdSum += res.Std

	if r.trueLogP != nil && !math.IsNaN(res.Std) {
		d := math.Abs(res.LogP - *r.trueLogP)
		if d <= res.Std {
			r.oneHits++
		}
		if d <= 2*res.Std {
			r.twoHits++
		}
	}
}

func MergeEstimateRecorder(rs []*EstimateRecorder) (*EstimateRecorder, error) {
	if len(rs) == 0 {
		return nil, errs.NewFatal("merge estimate record err : empty input")
	}
	r0 := rs[0]
	s, err := NewEstimateRecorder(r0.ModelName, r0.ModelID, r0.Items)
	if err != nil {
		return s, err
	}
	s.trueLogP = r0.trueLogP
	for _, v := range rs {
		if v.ModelName != r0.ModelName {
			return s, errs.NewFatal("merge estimate record err : different model name")
		}
		if v.ModelID != r0.ModelID || v.Items != r0.Items {
			return s, errs.NewFatal("merge estimate record err : different model id or items")
		}
		s.trials += v.trials
		s.truncated += v.truncated
		s.totalCalls += v.totalCalls
		s.logpSum += v.logpSum
		s.logpSqSum += v.logpSqSum
		s.stdSum += v.stdSum
		s.oneHits += v.oneHits
		s.twoHits += v.twoHits
	}
	return s, nil
}

// Done 輸出校準報表（未呼叫 report.Done()，由呼叫端決定計算時點）。
func (r *EstimateRecorder) Done() *stats.CalibReport {
	report := &stats.CalibReport{
		Summary: &stats.SummaryReport{
			ModelName:  r.ModelName,
			ModelID:    r.ModelID,
			Items:      r.Items,
			Trials:     r.trials,
			Truncated:  r.truncated,
			TotalCalls: r.totalCalls,
		},
		Est: &stats.EstReport{
			LogPSum:   r.logpSum,
			LogPSqSum: r.logpSqSum,
			StdSum:    r.stdSum,
			TrueLogP:  r.trueLogP,
		},
	}
	if r.trueLogP != nil {
		report.Cover = &stats.CoverReport{
			OneSigmaHits: r.oneHits,
			TwoSigmaHits: r.twoHits,
		}
	}
	return report
}
