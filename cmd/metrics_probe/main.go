package main

import (
	"flag"
	"fmt"
	"math/rand"
	"time"

	"rate-desk-go/infrastructure/monitor"
	"rate-desk-go/metrics"
)

// 指标联调探针：起一个 /metrics 端点并周期性灌入模拟的议价活动，
// 便于在 Prometheus/Grafana 侧验证 rd_desk_* 面板。
func main() {
	addr := flag.String("metricsAddr", ":9100", "Prometheus 指标监听地址")
	interval := flag.Duration("interval", 5*time.Second, "模拟活动间隔")
	board := flag.Float64("board", 1400, "模拟 loadboard rate")
	flag.Parse()

	mon := monitor.New(monitor.DefaultConfig())
	metrics.StartMetricsServer(*addr, mon.Handler())
	fmt.Printf("metrics_probe started at %s\n", *addr)

	mon.UpdateCatalogSize(8)

	kinds := []string{"accept", "counter", "counter-final", "confirm-low", "reject"}
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for range ticker.C {
		kind := kinds[rand.Intn(len(kinds))]
		mon.RecordDecision(kind)
		switch kind {
		case "accept":
			rate := *board * (0.90 + rand.Float64()*0.08)
			mon.UpdateAgreedRate(rate)
			mon.RecordRoundsPlayed(1 + rand.Intn(3))
			mon.RecordEvent("booked")
		case "counter", "counter-final":
			mon.UpdateCounterRate(*board * (0.92 + rand.Float64()*0.06))
		case "reject":
			mon.RecordRoundsPlayed(3)
			mon.RecordEvent("no-agreement")
		}
		mon.RecordVerification("eligible")
		mon.RecordLoadSearch(rand.Intn(4))
	}
}
