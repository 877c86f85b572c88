package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zhangbiao2009/linerelay/cmd"
	"github.com/zhangbiao2009/linerelay/log"
	"github.com/zhangbiao2009/linerelay/node"
)

func main() {
	addr := flag.String("addr", "", "listen address (overrides LISTEN_ADDR)")
	metricsAddr := flag.String("metrics-addr", "", "metrics listen address (overrides METRICS_ADDR)")
	connect := flag.String("connect", "", "run as an interactive client against the given server")
	flag.Parse()

	if *connect != "" {
		if err := cmd.RunClient(*connect); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := log.InitLogger(); err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}

	cfg := node.NewConfigFromEnv()
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddr, nil); err != nil {
			log.Logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	s := node.NewServer(cfg)
	if err := s.Run(); err != nil {
		log.Logger.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}
