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

package ibslab_test

import (
	"context"
	"math"
	"testing"

	"github.com/zintix-labs/ibslab"
	"github.com/zintix-labs/ibslab/demo/demo_configs"
	"github.com/zintix-labs/ibslab/demo/demo_models"
	"github.com/zintix-labs/ibslab/dto"
	"github.com/zintix-labs/ibslab/sdk/core"
)

func newDemoLab(t *testing.T) *ibslab.Lab {
	t.Helper()
	lab, err := ibslab.NewAuto(core.Default(), ibslab.Configs(demo_configs.FS), ibslab.Models(demo_models.Reg))
	if err != nil {
		t.Fatalf("new lab failed: %v", err)
	}
	return lab
}

func TestLabAssembly(t *testing.T) {
	lab := newDemoLab(t)

	ids := lab.IDs()
	if len(ids) != 3 {
		t.Fatalf("expected 3 models, got %d", len(ids))
	}

	ent, ok := lab.EntryById(1)
	if !ok {
		t.Fatal("model id 1 not found")
	}
	if _, ok := lab.EntryByName(ent.Name); !ok {
		t.Fatalf("model name %q not found", ent.Name)
	}

	sum, err := lab.Summary()
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if len(sum) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(sum))
	}
	for _, s := range sum {
		if s.Name == "" || s.Model == "" || s.Items < 1 {
			t.Fatalf("bad summary: %+v", s)
		}
	}
}

// 同一份設定 + 同一個 seed ⇒ 同一份資料集、同一個估計值。
func TestSamplerReproducible(t *testing.T) {
	lab := newDemoLab(t)

	const seed = int64(42)
	s1, err := lab.NewSamplerWithSeed(1, seed)
	if err != nil {
		t.Fatalf("new sampler failed: %v", err)
	}
	s2, err := lab.NewSamplerWithSeed(1, seed)
	if err != nil {
		t.Fatalf("new sampler failed: %v", err)
	}

	a := s1.GenItems(200)
	b := s2.GenItems(200)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("dataset diverged at %d: %d vs %d", i, a[i], b[i])
		}
	}

	ra, err := s1.Estimate(a)
	if err != nil {
		t.Fatalf("estimate failed: %v", err)
	}
	rb, err := s2.Estimate(b)
	if err != nil {
		t.Fatalf("estimate failed: %v", err)
	}
	if ra.LogP != rb.LogP || ra.NCalls != rb.NCalls {
		t.Fatalf("estimates diverged: %+v vs %+v", ra, rb)
	}
}

// request 帶 seed 時整條派生鏈 rewind：重送同一個 request 必得同一個結果。
func TestSamplerEstimateRequestReplay(t *testing.T) {
	lab := newDemoLab(t)

	s, err := lab.NewSampler(1)
	if err != nil {
		t.Fatalf("new sampler failed: %v", err)
	}

	seed := int64(7)
	req := &dto.EstimateRequest{UID: "u1", ModelID: 1, NItems: 100, Seed: &seed}

	r1, err := s.EstimateRequest(req)
	if err != nil {
		t.Fatalf("estimate request failed: %v", err)
	}
	r2, err := s.EstimateRequest(req)
	if err != nil {
		t.Fatalf("estimate request failed: %v", err)
	}
	if r1.LogP != r2.LogP || r1.NCalls != r2.NCalls {
		t.Fatalf("replay diverged: %+v vs %+v", r1, r2)
	}
	if r1.Seed != seed {
		t.Fatalf("seed got %d, want %d", r1.Seed, seed)
	}
	if r1.TrueLogP == nil {
		t.Fatal("expected analytic truth for demo bernoulli")
	}
}

func TestCalibratorRun(t *testing.T) {
	lab := newDemoLab(t)

	c, err := lab.NewCalibratorWithSeed(1, 99)
	if err != nil {
		t.Fatalf("new calibrator failed: %v", err)
	}

	rep, used, err := c.Run(20, false)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if used <= 0 {
		t.Fatalf("unexpected duration: %v", used)
	}
	if rep.Summary.Trials != 20 || rep.Summary.Truncated != 0 {
		t.Fatalf("unexpected summary: %+v", rep.Summary)
	}
	if math.IsNaN(rep.Est.MeanLogP) || rep.Est.MeanLogP >= 0 {
		t.Fatalf("mean logp got %v", rep.Est.MeanLogP)
	}
	if rep.Cover == nil {
		t.Fatal("expected coverage report for demo bernoulli")
	}

	// 同一台 Calibrator 可以重跑（reset 行為）
	rep2, _, err := c.RunMP(20, 4, false)
	if err != nil {
		t.Fatalf("run mp failed: %v", err)
	}
	if rep2.Summary.Trials != 20 {
		t.Fatalf("unexpected mp summary: %+v", rep2.Summary)
	}
}

func TestRuntimeEstimate(t *testing.T) {
	lab := newDemoLab(t)

	rt, err := lab.BuildRuntime(2)
	if err != nil {
		t.Fatalf("build runtime failed: %v", err)
	}
	defer rt.Close()

	seed := int64(5)
	req := &dto.EstimateRequest{UID: "u1", ModelID: 1, NItems: 50, Seed: &seed}
	out, err := rt.Estimate(context.Background(), req)
	if err != nil {
		t.Fatalf("estimate failed: %v", err)
	}
	if out.NItems != 50 || !out.Converged {
		t.Fatalf("unexpected result: %+v", out)
	}

	if _, err := rt.Estimate(context.Background(), &dto.EstimateRequest{ModelID: 404}); err == nil {
		t.Fatal("expected error for unknown model id")
	}

	ms := rt.Metrics()
	if len(ms) != 3 {
		t.Fatalf("expected 3 pool metrics, got %d", len(ms))
	}
	for _, m := range ms {
		if m.PoolSize != 2 || m.Closed {
			t.Fatalf("unexpected pool metrics: %+v", m)
		}
	}

	rt.Close()
	if !rt.Closed() {
		t.Fatal("runtime should be closed")
	}
	if _, err := rt.Estimate(context.Background(), req); err == nil {
		t.Fatal("expected error after close")
	}
}
