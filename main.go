package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"voxelrelay/server"
)

// VoxelRelay 入口：加载配置，启动 WebSocket 房间同步服务
func main() {
	var (
		configPath string
		addr       string
		origins    string
	)
	flag.StringVar(&configPath, "config", "", "path to YAML config file")
	flag.StringVar(&addr, "addr", "", "listen address, e.g. :3000 (overrides config)")
	flag.StringVar(&origins, "origins", "", "comma-separated allowed origins, * for any (overrides config)")
	flag.Parse()

	cfg, err := server.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if addr != "" {
		cfg.Addr = addr
	}
	if origins != "" {
		cfg.AllowedOrigins = strings.Split(origins, ",")
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	if err := server.InitLogger(cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer server.SyncLogger()

	hub, err := server.NewHub(cfg)
	if err != nil {
		server.Log.Fatalf("init hub: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.HandleFunc("/admin/rooms", hub.HandleRooms)
	mux.HandleFunc("/metrics", hub.HandleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		server.Log.Infof("VoxelRelay listening on %s (origins=%v, room_capacity=%d)", cfg.Addr, cfg.AllowedOrigins, cfg.RoomCapacity)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			server.Log.Fatalf("listen: %v", err)
		}
	}()

	// 优雅退出（Ctrl+C）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	server.Log.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		server.Log.Errorf("http shutdown: %v", err)
	}
	if err := hub.Close(); err != nil {
		server.Log.Errorf("close hub: %v", err)
	}
}
