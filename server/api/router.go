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

package api

import (
	"log/slog"

	"github.com/zintix-labs/ibslab/server/api/index"
	v1 "github.com/zintix-labs/ibslab/server/api/v1"
	"github.com/zintix-labs/ibslab/server/netsvr"
	"github.com/zintix-labs/ibslab/server/netsvr/middleware"
	"github.com/zintix-labs/ibslab/server/svrcfg"
)

// RegisterRoutes 註冊
func RegisterRoutes(svr netsvr.NetSvr, sCfg *svrcfg.SvrCfg) {
	registerMiddleware(svr, sCfg.Log) // 1. 註冊 middleware
	registerIndex(svr)                // 2. 註冊主頁

	// 3. 註冊 v1 api
	// BuildRuntime 可能因使用者設定失敗（設定檔宣告了 registry 沒有的 model_key）；
	// 失敗時 server 仍會起來（只剩主頁），但必須把原因留在 log 裡。
	if err := registerV1API(svr, sCfg); err != nil {
		sCfg.Log.Error("v1 api not registered", slog.Any("err", err))
	}
}

// 註冊 middleware
func registerMiddleware(svr netsvr.NetSvr, log *slog.Logger) {
	svr.Use(middleware.RequestID)
	svr.Use(middleware.AccessLog(log))
	svr.Use(middleware.Recover)
	svr.Use(middleware.Compression)
}

// 註冊主頁
func registerIndex(svr netsvr.NetSvr) {
	svr.Get("/", index.IndexHandlerFn)
}

// 註冊 v1 api
func registerV1API(svr netsvr.NetSvr, sCfg *svrcfg.SvrCfg) error {
	e, err := v1.NewEstimateHandler(sCfg)
	if err != nil {
		return err
	}
	c, err := v1.NewCalibHandler(sCfg.Lab)
	if err != nil {
		return err
	}
	svr.Group("/v1", func(vOne netsvr.NetRouter) {
		vOne.Get("/estimate", e.Estimate)
		vOne.Get("/metrics", e.Metrics)
		vOne.Get("/calib", c.Calib)

		vOne.Post("/estimate", e.Estimate)
		vOne.Post("/calib", c.Calib)
		vOne.Post("/calibbycfg", c.CalibByCfg)
	})
	return nil
}
