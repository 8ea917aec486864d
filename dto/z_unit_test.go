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

package dto

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zintix-labs/ibslab/sdk/ibs"
)

func TestDecodeEstimateRequestGET(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/estimate?uid=u1&model=demo_bernoulli&mid=1&n_items=500&seed=42", nil)
	req, err := DecodeEstimateRequest(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.UID != "u1" || req.ModelName != "demo_bernoulli" || req.ModelID != 1 {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.NItems != 500 {
		t.Fatalf("unexpected n_items: %d", req.NItems)
	}
	if req.Seed == nil || *req.Seed != 42 {
		t.Fatalf("unexpected seed: %+v", req.Seed)
	}
	if err := req.Valid(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestDecodeEstimateRequestPOST(t *testing.T) {
	payload := map[string]any{
		"uid":   "u2",
		"model": "demo_bernoulli",
		"mid":   1,
		"items": []int{0, 1, 1, 0, 1},
	}
	data, _ := json.Marshal(payload)
	r := httptest.NewRequest(http.MethodPost, "/estimate", bytes.NewReader(data))
	req, err := DecodeEstimateRequest(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.ModelID != 1 || len(req.Items) != 5 {
		t.Fatalf("unexpected request: %+v", req)
	}
	if err := req.Valid(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestDecodeEstimateRequestRejectsUnknownFields(t *testing.T) {
	data := []byte(`{"mid":1,"model":"demo_bernoulli","unknown":true}`)
	r := httptest.NewRequest(http.MethodPost, "/estimate", bytes.NewReader(data))
	if _, err := DecodeEstimateRequest(r); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestEstimateRequestValidRejectsAmbiguousDataset(t *testing.T) {
	req := &EstimateRequest{Items: []int{1, 0}, NItems: 10}
	if err := req.Valid(); err == nil {
		t.Fatalf("expected error for items + n_items")
	}
}

func TestEstimateResultDTONullStd(t *testing.T) {
	res := ibs.Result{LogP: -5, Std: math.NaN(), Converged: false, NCalls: 99}
	out := NewEstimateResultDTO("demo_bernoulli", 1, 10, res, 42, nil, 3)
	if out.Std != nil {
		t.Fatalf("truncated std must be null, got %v", *out.Std)
	}
	raw, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !bytes.Contains(raw, []byte(`"std":null`)) {
		t.Fatalf("expected std null in json: %s", raw)
	}
}
