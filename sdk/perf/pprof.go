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

// Package perf 包裝 runtime/pprof，供校準 CLI 一鍵剖析估計熱路徑。
//
// 估計的熱點通常在 per-item probe 迴圈與 PRNG 派生；
// cpu profile 可直接餵給 PGO（go build -pgo）作構建優化。
package perf

import (
	"os"
	"runtime"
	"runtime/pprof"
)

const pprofDir = "build/profiling" // pprof檔案寫入路徑

// RunPProf 依 mode 包裝 exe 執行：空字串或未知 mode 直接執行不剖析。
//
// Usage like:
//
//	go run ./cmd/run -model 1 -trials 1000 -p cpu
//	go run ./cmd/run -model 1 -trials 1000 -p heap
func RunPProf(exe func(), mode string) {

	// 確保目錄存在
	_ = os.MkdirAll(pprofDir, 0o755)

	switch mode {
	case "":
		exe()
	case "cpu":
		PProfCPU(exe)
	case "heap":
		PProfHeap(exe)
	case "allocs":
		PProfAllocs(exe)
	default:
		exe()
	}
}

// PProfCPU 以 CPU profiling 包住整次校準。
//
// 長跑的校準（數十萬次 probe）取樣才夠密；trials 太小時 profile 會稀疏到沒參考價值。
// 輸出檔：build/profiling/cpu.pprof
func PProfCPU(exe func()) {

	// 確保目錄存在
	_ = os.MkdirAll(pprofDir, 0o755)

	filePath := pprofDir + "/cpu.pprof"
	f, err := os.Create(filePath)
	if err != nil {
		panic("failed to create cpu.pprof : " + err.Error())
	}
	defer f.Close()
	if err := pprof.StartCPUProfile(f); err != nil {
		panic("failed to start pprof : " + err.Error())
	}
	defer pprof.StopCPUProfile()

	exe()
}

// PProfHeap 會在 exe() 執行完後，寫出一次 Heap Snapshot（in-use memory）。
//
// 校準的常駐記憶體主要是 per-item state arena 與 LUT/alias 表；
// 寫出前先 runtime.GC()，讓快照貼近 live objects 而不是殘留垃圾。
// 輸出檔：build/profiling/heap.pprof
func PProfHeap(exe func()) {
	// 先執行目標邏輯，再拍一次快照
	exe()

	_ = os.MkdirAll(pprofDir, 0o755)

	// 盡量讓快照貼近最新狀態
	runtime.GC()

	filePath := pprofDir + "/heap.pprof"
	f, err := os.Create(filePath)
	if err != nil {
		panic("failed to create heap.pprof : " + err.Error())
	}
	defer f.Close()

	if err := pprof.WriteHeapProfile(f); err != nil {
		panic("failed to write heap profile : " + err.Error())
	}

}

// PProfAllocs 會在 exe() 後寫出「累積配置」(allocs) Profile。
//
// 用來抓 probe 迴圈裡不該出現的重複配置（查看時搭配 -alloc_space / -alloc_objects）。
// 輸出檔：build/profiling/allocs.pprof
func PProfAllocs(exe func()) {
	exe()

	_ = os.MkdirAll(pprofDir, 0o755)

	filePath := pprofDir + "/allocs.pprof"
	f, err := os.Create(filePath)
	if err != nil {
		panic("failed to create allocs.pprof : " + err.Error())
	}
	defer f.Close()

	if prof := pprof.Lookup("allocs"); prof != nil {
		if err := prof.WriteTo(f, 0); err != nil {
			panic("failed to write allocs profile : " + err.Error())
		}
	}

}
