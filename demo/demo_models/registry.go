package demo_models

import "github.com/zintix-labs/ibslab/sdk/model"

// Reg collects the demo model builders; each model file registers itself in init().
var Reg = model.NewRegistry()
