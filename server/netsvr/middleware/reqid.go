package middleware

import (
	"net/http"
	"strings"

	chimid "github.com/go-chi/chi/v5/middleware"
)

// RequestID 為每個請求配發 request id（chi 格式：hostname-counter）。
func RequestID(next http.Handler) http.Handler {
	return chimid.RequestID(next)
}

// GetReqId 取出本請求的 request id；access log 與錯誤回應共用同一個 id 做關聯。
func GetReqId(r *http.Request) string {
	return chimid.GetReqID(r.Context())
}

func GetReqIdNumPart(r *http.Request) string {
	str := chimid.GetReqID(r.Context())
	if len(str) == 0 {
		return ""
	}
	i := strings.LastIndex(str, "-")
	if i < 0 || i+1 >= len(str) {
		return str
	}
	return str[i+1:]
}
