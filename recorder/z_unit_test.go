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

package recorder_test

import (
	"math"
	"testing"

	"github.com/zintix-labs/ibslab/recorder"
	"github.com/zintix-labs/ibslab/sdk/ibs"
)

func TestEstimateRecorder(t *testing.T) {
	r, err := recorder.NewEstimateRecorder("m", 1, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r.SetTruth(-10)

	r.Record(ibs.Result{LogP: -10.5, Std: 1, Converged: true, NCalls: 30})  // 1σ 內
	r.Record(ibs.Result{LogP: -11.5, Std: 1, Converged: true, NCalls: 35})  // 2σ 內
	r.Record(ibs.Result{LogP: -20, Std: math.NaN(), Converged: false, NCalls: 5}) // 被裁剪

	rep := r.Done()
	rep.Done()

	if rep.Summary.Trials != 3 || rep.Summary.Truncated != 1 {
		t.Fatalf("unexpected summary: %+v", rep.Summary)
	}
	if rep.Summary.TotalCalls != 70 {
		t.Fatalf("total calls got %d, want 70", rep.Summary.TotalCalls)
	}
	if math.Abs(rep.Est.MeanLogP-(-11)) > 1e-12 {
		t.Fatalf("mean logp got %v, want -11", rep.Est.MeanLogP)
	}
	if rep.Cover == nil {
		t.Fatal("expected coverage with truth set")
	}
	if rep.Cover.OneSigmaHits != 1 || rep.Cover.TwoSigmaHits != 2 {
		t.Fatalf("coverage hits got %d/%d, want 1/2", rep.Cover.OneSigmaHits, rep.Cover.TwoSigmaHits)
	}
}

func TestMergeEstimateRecorder(t *testing.T) {
	a, _ := recorder.NewEstimateRecorder("m", 1, 10)
	b, _ := recorder.NewEstimateRecorder("m", 1, 10)
	a.Record(ibs.Result{LogP: -9, Std: 1, Converged: true, NCalls: 20})
	b.Record(ibs.Result{LogP: -11, Std: 1, Converged: true, NCalls: 22})

	m, err := recorder.MergeEstimateRecorder([]*recorder.EstimateRecorder{a, b})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rep := m.Done()
	rep.Done()
	if rep.Summary.Trials != 2 || rep.Summary.TotalCalls != 42 {
		t.Fatalf("unexpected merged summary: %+v", rep.Summary)
	}
	if math.Abs(rep.Est.MeanLogP-(-10)) > 1e-12 {
		t.Fatalf("merged mean got %v, want -10", rep.Est.MeanLogP)
	}

	c, _ := recorder.NewEstimateRecorder("other", 2, 10)
	if _, err := recorder.MergeEstimateRecorder([]*recorder.EstimateRecorder{a, c}); err == nil {
		t.Fatal("expected merge error for different models")
	}
}

func TestNewEstimateRecorderValid(t *testing.T) {
	if _, err := recorder.NewEstimateRecorder("", 1, 10); err == nil {
		t.Fatal("expected error for empty name")
	}
	if _, err := recorder.NewEstimateRecorder("m", 1, 0); err == nil {
		t.Fatal("expected error for zero items")
	}
}
