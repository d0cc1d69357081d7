// Package metrics exposes the Prometheus scrape endpoint for the rate desk.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StartMetricsServer 启动Prometheus指标服务器。
// handler 为 nil 时使用默认注册表。
func StartMetricsServer(addr string, handler http.Handler) {
	if handler == nil {
		handler = promhttp.Handler()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	go func() {
		_ = http.ListenAndServe(addr, mux)
	}()
}
