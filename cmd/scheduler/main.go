package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uma-arai/sbcntr-roombooking/internal/app"
	"github.com/uma-arai/sbcntr-roombooking/internal/common/config"
	"github.com/uma-arai/sbcntr-roombooking/internal/metrics"
	"github.com/uma-arai/sbcntr-roombooking/internal/repository"
)

const (
	projectName = "sbcntr-roombooking-scheduler"
)

func main() {
	migrate := flag.Bool("migrate", false, "起動時にスキーマを作成する")
	flag.Parse()

	// 設定の読み込み
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load config: %v\nStack trace:\n%s", err, debug.Stack())
	}

	// X-Ray設定
	if cfg.EnableTracing {
		if err := xray.Configure(xray.Config{
			DaemonAddr:     "127.0.0.1:2000", // X-Rayデーモンのアドレス
			ServiceVersion: "1.0.0",
		}); err != nil {
			log.Printf("Failed to configure X-Ray: %v", err)
			// X-Ray設定失敗時はデフォルトの設定を使用
			if configErr := xray.Configure(xray.Config{}); configErr != nil {
				log.Fatalf("Failed to configure default X-Ray settings: %v", configErr)
			}
		}
		os.Setenv("AWS_XRAY_CONTEXT_MISSING", "LOG_ERROR")
	}

	// シグナルを受け取ったらコンテキストをキャンセルする
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 依存関係の初期化
	a, err := app.New(ctx, cfg, projectName)
	if err != nil {
		log.Fatalf("Failed to create application: %v\nStack trace:\n%s", err, debug.Stack())
	}
	defer a.Close()

	if *migrate {
		if err := repository.Migrate(ctx, a.DB); err != nil {
			log.Fatalf("Failed to migrate schema: %v\nStack trace:\n%s", err, debug.Stack())
		}
		log.Println("Schema migration completed")
	}

	// メトリクスの公開
	metrics.Register()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("Metrics server listening on %s", cfg.Metrics.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server error: %v", err)
		}
	}()

	// スケジューラーの実行。シグナル受信後は実行中のティックの完了を待って戻る
	if err := a.Scheduler.Run(ctx); err != nil {
		log.Printf("Scheduler stopped with error: %v\nStack trace:\n%s", err, debug.Stack())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shut down metrics server: %v", err)
	}
	log.Println("Scheduler shut down gracefully")
}
