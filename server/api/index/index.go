package index

import (
	"encoding/json"
	"net/http"
)

// IndexHandlerFn 主頁：回報服務存活與可用端點。
func IndexHandlerFn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := map[string]any{
		"service": "ibslab",
		"status":  "ok",
		"endpoints": []string{
			"GET|POST /v1/estimate",
			"GET /v1/metrics",
			"GET|POST /v1/calib",
			"POST /v1/calibbycfg",
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
