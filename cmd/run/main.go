package main

import "github.com/zintix-labs/ibslab/sdk/perf"

// makefile runner
func main() {
	bindVar()
	perf.RunPProf(executeCalibrator, cfg.pprofmode)
}
