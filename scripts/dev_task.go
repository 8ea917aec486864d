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

package main

import (
	"fmt"
	"os"
	"os/exec"
)

// runCalibSmoke 對 demo bernoulli 模型跑一輪小規模校準（固定 seed），
// 用於在改動估計核心後快速確認 Mean LogP / 覆蓋率沒有跑掉。
func runCalibSmoke() {
	PrintGreen("running demo calibration (model 1, 200 trials, seed 42)")

	cmd := exec.Command("go", "run", "./cmd/run",
		"-model", "1",
		"-trials", "200",
		"-worker", "4",
		"-seed", "42",
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		PrintRed(fmt.Sprintf("calibration smoke run failed: %v", err))
		os.Exit(1)
	}
}

// runDemoServer 啟動內嵌 demo models 的 lab server（Ctrl+C 結束）。
func runDemoServer() {
	PrintCyan("starting demo lab server (pool=3, ModeDev)")

	cmd := exec.Command("go", "run", "./cmd/svr", "-pool", "3", "-log-mode", "ModeDev")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		PrintRed(fmt.Sprintf("demo server exited: %v", err))
		os.Exit(1)
	}
}
