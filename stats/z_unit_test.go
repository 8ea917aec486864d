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

package stats_test

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/zintix-labs/ibslab/stats"
)

// buildCalibReport constructs a CalibReport from a list of per-trial logp
// values with a known truth, treating every trial as converged.
func buildCalibReport(logps []float64, reportedStd float64, trueLogP float64, oneHits, twoHits int) *stats.CalibReport {
	var sum, sqSum, stdSum float64
	for _, v := range logps {
		sum += v
		sqSum += v * v
		stdSum += reportedStd
	}
	truth := trueLogP
	return &stats.CalibReport{
		Summary: &stats.SummaryReport{
			ModelName:  "testmodel",
			ModelID:    1,
			Items:      100,
			Trials:     len(logps),
			Truncated:  0,
			TotalCalls: int64(100 * 3 * len(logps)),
		},
		Est: &stats.EstReport{
			LogPSum:   sum,
			LogPSqSum: sqSum,
			StdSum:    stdSum,
			TrueLogP:  &truth,
		},
		Cover: &stats.CoverReport{
			OneSigmaHits: oneHits,
			TwoSigmaHits: twoHits,
		},
	}
}

func TestCalibReportDone(t *testing.T) {
	logps := []float64{-120, -118, -122, -119, -121}
	r := buildCalibReport(logps, 1.5, -120, 3, 5)
	r.Done()

	if math.Abs(r.Est.MeanLogP-(-120)) > 1e-12 {
		t.Fatalf("mean logp got %v, want -120", r.Est.MeanLogP)
	}
	// 樣本標準差 of {-120,-118,-122,-119,-121} = sqrt(10/4)
	want := math.Sqrt(2.5)
	if math.Abs(r.Est.SpreadLogP-want) > 1e-9 {
		t.Fatalf("spread got %v, want %v", r.Est.SpreadLogP, want)
	}
	if math.Abs(r.Est.MeanStd-1.5) > 1e-12 {
		t.Fatalf("mean std got %v, want 1.5", r.Est.MeanStd)
	}
	// calls per item = total / items / trials = 1500/100/5
	if math.Abs(r.Est.CallsPerItem-3) > 1e-12 {
		t.Fatalf("calls per item got %v, want 3", r.Est.CallsPerItem)
	}
	if r.Est.Bias == nil || math.Abs(*r.Est.Bias) > 1e-9 {
		t.Fatalf("bias got %v, want 0", r.Est.Bias)
	}
	if r.Cover.WithinOne.Hat != 0.6 || r.Cover.WithinTwo.Hat != 1.0 {
		t.Fatalf("coverage hats got %v / %v", r.Cover.WithinOne.Hat, r.Cover.WithinTwo.Hat)
	}
	// CP 區間基本性質：hat 落在 [Lo, Hi]、k=n 時 Hi=1
	ci := r.Cover.WithinOne.CI
	if ci.Lo > 0.6 || ci.Hi < 0.6 {
		t.Fatalf("1σ CI does not contain hat: %+v", ci)
	}
	if r.Cover.WithinTwo.CI.Hi != 1 {
		t.Fatalf("k=n must give Hi=1, got %v", r.Cover.WithinTwo.CI.Hi)
	}
}

func TestCalibReportDoneIdempotent(t *testing.T) {
	r := buildCalibReport([]float64{-10, -12}, 1, -11, 2, 2)
	r.Done()
	mean := r.Est.MeanLogP
	r.Est.LogPSum = -999 // Done 後改 raw 值不應影響結果
	r.Done()
	if r.Est.MeanLogP != mean {
		t.Fatalf("Done must be idempotent")
	}
}

func TestCalibReportTruncatedOnly(t *testing.T) {
	r := &stats.CalibReport{
		Summary: &stats.SummaryReport{ModelName: "t", Trials: 3, Truncated: 3},
		Est:     &stats.EstReport{},
	}
	r.Done()
	if r.Est.MeanLogP != 0 || r.Est.SpreadLogP != 0 {
		t.Fatalf("all-truncated report should stay zeroed: %+v", r.Est)
	}
}

func TestCalibReportRenders(t *testing.T) {
	r := buildCalibReport([]float64{-50, -52}, 0.9, -51, 1, 2)

	var jbuf bytes.Buffer
	if err := r.WriteWith(&jbuf, &stats.JsonCalibReportRender{}); err != nil {
		t.Fatalf("json render: %v", err)
	}
	if !strings.Contains(jbuf.String(), `"MeanLogP"`) {
		t.Fatalf("json output missing MeanLogP: %s", jbuf.String())
	}

	var ybuf bytes.Buffer
	if err := r.WriteWith(&ybuf, &stats.YAMLCalibReportRender{}); err != nil {
		t.Fatalf("yaml render: %v", err)
	}
	if !strings.Contains(ybuf.String(), "MeanLogP") {
		t.Fatalf("yaml output missing MeanLogP: %s", ybuf.String())
	}
}
