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

package spec_test

import (
	"testing"

	"github.com/zintix-labs/ibslab/spec"
)

const yamlOK = `
model_id: 7
model_name: bernoulli
model_key: bernoulli
items: 500
params:
  data_p: 0.3
  model_p: 0.5
`

func TestGetEstimateSettingByYAML(t *testing.T) {
	es, err := spec.GetEstimateSettingByYAML([]byte(yamlOK))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if es.ModelID != 7 || es.ModelName != "bernoulli" || es.ModelKey != "bernoulli" {
		t.Fatalf("identity fields wrong: %+v", es)
	}
	if es.Items != 500 {
		t.Fatalf("items got %d want 500", es.Items)
	}
	// defaults
	if es.Repeats != 1 {
		t.Fatalf("repeats default got %d want 1", es.Repeats)
	}
	if es.BatchSize != 100 {
		t.Fatalf("batch_size default got %d want 100", es.BatchSize)
	}
	if es.MinLogP != 0 {
		t.Fatalf("min_logp default got %f want 0 (no floor)", es.MinLogP)
	}
}

func TestGetEstimateSettingByJSON(t *testing.T) {
	raw := []byte(`{"model_id":1,"model_name":"walk","model_key":"randomwalk","items":10,"repeats":3,"parallel":true,"batch_size":16}`)
	es, err := spec.GetEstimateSettingByJSON(raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !es.Parallel || es.BatchSize != 16 || es.Repeats != 3 {
		t.Fatalf("fields wrong: %+v", es)
	}
}

func TestSettingValidation(t *testing.T) {
	bad := []string{
		`model_name: ""` + "\nmodel_key: k\nitems: 1",     // empty name
		"model_name: m\nmodel_key: ''\nitems: 1",          // empty key
		"model_name: m\nmodel_key: k\nitems: 0",           // items < 1
		"model_name: m\nmodel_key: k\nitems: 1\nrepeats: -1",
		"model_name: m\nmodel_key: k\nitems: 1\nmin_logp: 1.5",
		"model_name: m\nmodel_key: k\nitems: 1\nbatch_size: -2",
	}
	for i, raw := range bad {
		if _, err := spec.GetEstimateSettingByYAML([]byte(raw)); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestDecodeParams(t *testing.T) {
	type bp struct {
		DataP  float64 `yaml:"data_p"`
		ModelP float64 `yaml:"model_p"`
	}
	es, err := spec.GetEstimateSettingByYAML([]byte(yamlOK))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	p := new(bp)
	if err := spec.DecodeParams(es, p); err != nil {
		t.Fatalf("DecodeParams failed: %v", err)
	}
	if p.DataP != 0.3 || p.ModelP != 0.5 {
		t.Fatalf("params wrong: %+v", p)
	}

	// unknown field must fail (strict decode)
	es.Params["typo_field"] = 1
	if err := spec.DecodeParams(es, new(bp)); err == nil {
		t.Fatalf("expected strict decode error for unknown field")
	}

	// empty params -> zero values, no error
	es.Params = nil
	q := new(bp)
	if err := spec.DecodeParams(es, q); err != nil {
		t.Fatalf("empty params should decode to zero values: %v", err)
	}
	if q.DataP != 0 || q.ModelP != 0 {
		t.Fatalf("expected zero values, got %+v", q)
	}
}
