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

package api_test

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/zintix-labs/ibslab"
	"github.com/zintix-labs/ibslab/demo/demo_configs"
	"github.com/zintix-labs/ibslab/demo/demo_models"
	"github.com/zintix-labs/ibslab/sdk/core"
	"github.com/zintix-labs/ibslab/server/api"
	"github.com/zintix-labs/ibslab/server/netsvr"
	"github.com/zintix-labs/ibslab/server/svrcfg"
)

func serve(t *testing.T, svr http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	svr.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRegisterRoutesServesV1(t *testing.T) {
	lab, err := ibslab.NewAuto(core.Default(), ibslab.Configs(demo_configs.FS), ibslab.Models(demo_models.Reg))
	if err != nil {
		t.Fatalf("new lab failed: %v", err)
	}
	sCfg := &svrcfg.SvrCfg{
		Log:      slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
		PoolSize: 1,
		Lab:      lab,
	}

	svr := netsvr.NewChiServerDefault()
	api.RegisterRoutes(svr, sCfg)

	if rec := serve(t, svr, "/"); rec.Code != http.StatusOK {
		t.Fatalf("index status got %d, want 200", rec.Code)
	}
	if rec := serve(t, svr, "/v1/metrics"); rec.Code != http.StatusOK {
		t.Fatalf("metrics status got %d, want 200", rec.Code)
	}
}

// 設定檔宣告的參數過不了 builder 檢查時，runtime 建不起來、v1 路由不會註冊。
// server 仍要能起來（只剩主頁），而且失敗原因必須出現在 log 裡，不能無聲吞掉。
func TestRegisterRoutesLogsRuntimeBuildFailure(t *testing.T) {
	badFS := fstest.MapFS{
		"bernoulli.yaml": &fstest.MapFile{Data: []byte(`model_id: 1
model_name: "demo_bernoulli"
model_key: "demo_bernoulli"
items: 10
repeats: 1
min_logp: 0
parallel: false
batch_size: 10
workers: 0
max_attempts: 0
params:
  data_p: 1.5
  model_p: 0.3
`)},
	}

	// RegisterAll 只做解析與 key 存在性檢查，data_p 超界要到 BuildRuntime 才爆
	lab, err := ibslab.NewAuto(core.Default(), ibslab.Configs(badFS), ibslab.Models(demo_models.Reg))
	if err != nil {
		t.Fatalf("new lab failed: %v", err)
	}

	var logBuf bytes.Buffer
	sCfg := &svrcfg.SvrCfg{
		Log:      slog.New(slog.NewTextHandler(&logBuf, nil)),
		PoolSize: 1,
		Lab:      lab,
	}

	svr := netsvr.NewChiServerDefault()
	api.RegisterRoutes(svr, sCfg)

	if !strings.Contains(logBuf.String(), "v1 api not registered") {
		t.Fatalf("runtime build failure must be logged, log was:\n%s", logBuf.String())
	}
	if rec := serve(t, svr, "/"); rec.Code != http.StatusOK {
		t.Fatalf("index must survive v1 failure, status got %d", rec.Code)
	}
	if rec := serve(t, svr, "/v1/metrics"); rec.Code != http.StatusNotFound {
		t.Fatalf("unregistered v1 route status got %d, want 404", rec.Code)
	}
}
