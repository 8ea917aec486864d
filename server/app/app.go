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

// Package app 提供應用程式生命週期管理（App），負責統一啟動與關閉多個 Component。
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// 估計請求可能長跑（低 hit 機率的 item 收斂慢），關閉期限放得比一般 API 服務寬，
// 讓 in-flight 的估計有機會跑完再斷線。
const defaultShutdownTimeout = 15 * time.Second

// App 是一個簡單的生命週期管理器：啟動所有註冊的 Component，
// 並在收到 OS 信號或任一 Component 出錯時協調優雅關閉。
type App struct {
	comps           []Component
	shutdownTimeout time.Duration
}

// New 建立一個新的 App 實例（使用預設關閉期限）。
func New() *App { return &App{shutdownTimeout: defaultShutdownTimeout} }

// NewWith 是 New 的語法糖，允許在建立時直接註冊多個 Component。
func NewWith(comps ...Component) *App {
	app := New()
	for _, c := range comps {
		app.Register(c)
	}
	return app
}

// Register 將一個 Component 註冊到 App 中，該 Component 將在 Run 時被管理。
func (a *App) Register(c Component) {
	a.comps = append(a.comps, c)
}

// SetShutdownTimeout 覆寫優雅關閉期限（d <= 0 時維持原值）。
func (a *App) SetShutdownTimeout(d time.Duration) {
	if d > 0 {
		a.shutdownTimeout = d
	}
}

// Run 以 goroutine 並行啟動所有註冊的 Component，並阻塞等待退出條件：
//   - 收到 OS 終止信號（SIGINT/SIGTERM）：優雅關閉後回傳 nil（正常結束）。
//   - 任一 Component 的 Run 先行返回：優雅關閉後回傳該錯誤。
//
// 合約：每個 Component.Run 是阻塞調用，代表該元件的生命週期。
func (a *App) Run() error {
	// errCh 用於收集任一 Component 首次返回的錯誤
	errCh := make(chan error, len(a.comps))
	for _, c := range a.comps {
		go func(c Component) {
			errCh <- c.Run()
		}(c)
	}

	// 等待終止信號
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	// select 等待兩種退出路徑：OS 信號或 Component 錯誤
	select {
	case <-quit:
		a.gracefulShutdown(a.shutdownTimeout)
		return nil
	case err := <-errCh:
		a.gracefulShutdown(a.shutdownTimeout)
		return err
	}
}

// gracefulShutdown 在給定的 timeout 內依序呼叫所有 Component.Shutdown。
// 無法在期限內關閉的元件，由實作者決定是否強制中止或忽略錯誤。
func (a *App) gracefulShutdown(td time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), td)
	defer cancel()
	for _, c := range a.comps {
		err := c.Shutdown(ctx)
		if err != nil {
			fmt.Fprintf(os.Stdout, "shutdown err: %v\n", err)
		}
	}
}
