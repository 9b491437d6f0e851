package main

import (
	"context"
	"flag"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/casks-mutters/zk-bytecode-stability/internal/api"
	"github.com/casks-mutters/zk-bytecode-stability/internal/config"
	"github.com/casks-mutters/zk-bytecode-stability/internal/history"
	"github.com/casks-mutters/zk-bytecode-stability/internal/shutdown"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "配置文件路径")
	port       = flag.Int("port", 8080, "API 服务端口")
	verbose    = flag.Bool("verbose", false, "详细输出")
)

func main() {
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	// 自动检测并加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("加载配置失败: %v", err)
	}

	// 打开历史存储
	store, err := history.NewStore(cfg.History.Path, logger)
	if err != nil {
		logger.Fatalf("打开历史存储失败: %v", err)
	}

	server := api.NewServer(cfg, store, logger, *port)

	gs := shutdown.NewGracefulShutdown(30*time.Second, logger)
	gs.Register("stop_api_server", func(ctx context.Context) error {
		return server.Stop(ctx)
	}, shutdown.OrderStopWatching)
	gs.Register("close_history", func(ctx context.Context) error {
		return store.Close()
	}, shutdown.OrderCloseHistory)
	gs.Start()

	if err := server.Start(); err != nil {
		logger.Errorf("API服务器异常退出: %v", err)
	}

	gs.Wait()
}
