package middleware

import (
	"net/http"

	chimid "github.com/go-chi/chi/v5/middleware"
)

// Recover 攔截 handler panic 並回 500。
//
// 注意：這層只保護 HTTP handler 本身；估計期間的 panic 由 SamplerPool
// 的 defer/recover 處理（壞機送修 + 補機），不會跑到這裡。
func Recover(next http.Handler) http.Handler {
	return chimid.Recoverer(next)
}
