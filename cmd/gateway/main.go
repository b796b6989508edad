// Command gateway runs the ATM acquirer TCP front end: it loads
// configuration, wires the protocol, charge, and ESB layers, starts
// the Prometheus metrics endpoint, and serves ISO-8583 connections
// until terminated.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nxgw/atmgateway/charge"
	"github.com/nxgw/atmgateway/config"
	"github.com/nxgw/atmgateway/esb"
	"github.com/nxgw/atmgateway/iso8583"
	"github.com/nxgw/atmgateway/metrics"
	"github.com/nxgw/atmgateway/processor"
	"github.com/nxgw/atmgateway/server"
)

const defaultMetricsAddress = "0.0.0.0:9090"

var (
	configPath  = flag.String("config", "config/gateway.yaml", "Path to configuration file")
	metricsAddr = flag.String("metrics", defaultMetricsAddress, "Prometheus metrics endpoint address")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	metricsCollector := metrics.NewMetrics()
	go startMetricsServer(*metricsAddr)
	log.Printf("metrics server started on %s", *metricsAddr)

	dict := iso8583.NewDictionary()
	codec := iso8583.NewWireCodec(dict)

	chargeEngine := charge.NewEngine(cfg.ChargeConfig())
	esbTimeout := time.Duration(cfg.Server.SocketTimeoutMs) * time.Millisecond
	if esbTimeout <= 0 {
		esbTimeout = 30 * time.Second
	}
	esbClient := esb.NewClient(cfg.Esb, esbTimeout, metricsCollector)

	proc := processor.New(dict, chargeEngine, esbClient, metricsCollector)

	srv := server.New(server.Config{
		Port:            cfg.Server.Port,
		Threads:         cfg.Server.Threads,
		SocketTimeoutMs: cfg.Server.SocketTimeoutMs,
	}, codec, dict, proc, metricsCollector)

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Server.Port)
	go func() {
		if err := srv.Start(addr); err != nil {
			log.Fatalf("failed to start TCP server: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func startMetricsServer(addr string) {
	http.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("failed to start metrics server: %v", err)
	}
}
