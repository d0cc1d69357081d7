package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"rate-desk-go/config"
	"rate-desk-go/negotiation"
	"rate-desk-go/sim"
)

// 一个极简的本地回放：把一串承运方报价喂给决策引擎，逐轮打印裁决。
// 可通过命令行参数调整策略；仅用于调参和验数，不落盘任何事件。
func main() {
	cfgPath := flag.String("config", "", "配置文件路径（空则用默认策略）")
	board := flag.Float64("board", 1400, "loadboard rate")
	miles := flag.Float64("miles", 500, "load miles (0 = unknown)")
	equip := flag.String("equip", "Dry Van", "equipment type")
	offers := flag.String("offers", "1100,1150", "comma separated carrier offers")
	maxRounds := flag.Int("maxRounds", 0, "override: max rounds (0 = keep)")
	floorPct := flag.Float64("floorPct", 0, "override: floor pct (0 = keep)")
	tick := flag.Float64("tick", 0, "override: counter tick (0 = keep)")
	flag.Parse()

	policy := negotiation.DefaultPolicy()
	if *cfgPath != "" {
		cfg, err := config.LoadWithEnvOverrides(*cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
			os.Exit(1)
		}
		policy = cfg.Negotiation
	}
	if *maxRounds > 0 {
		policy.MaxRounds = *maxRounds
	}
	if *floorPct > 0 {
		policy.FloorPct = *floorPct
	}
	if *tick > 0 {
		policy.Tick = *tick
	}

	neg, err := negotiation.New(policy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "策略非法: %v\n", err)
		os.Exit(1)
	}

	script, err := parseOffers(*offers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "报价脚本非法: %v\n", err)
		os.Exit(1)
	}

	load := negotiation.LoadContext{
		LoadID:        "ratecheck",
		BoardRate:     *board,
		Miles:         *miles,
		EquipmentType: *equip,
	}
	runner := sim.Runner{Neg: neg}
	res, err := runner.Run(load, script)
	if err != nil {
		fmt.Fprintf(os.Stderr, "回放失败: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("board=%.2f miles=%.0f equip=%s\n", *board, *miles, *equip)
	for _, step := range res.Steps {
		d := step.Decision
		switch {
		case d.CounterRate > 0:
			fmt.Printf("round %d: offer %.2f -> %s %.2f (floor %.2f)\n",
				step.Round, step.Offer, d.Kind, d.CounterRate, d.Floor)
		default:
			fmt.Printf("round %d: offer %.2f -> %s (floor %.2f)\n",
				step.Round, step.Offer, d.Kind, d.Floor)
		}
	}
	if res.AgreedRate > 0 {
		fmt.Printf("成交: %.2f\n", res.AgreedRate)
	} else {
		fmt.Printf("终局: %s\n", res.Outcome)
	}
}

func parseOffers(raw string) ([]float64, error) {
	parts := strings.Split(raw, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("bad offer %q: %w", p, err)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no offers given")
	}
	return out, nil
}
