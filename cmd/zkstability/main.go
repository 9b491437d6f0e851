package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/casks-mutters/zk-bytecode-stability/internal/chain"
	"github.com/casks-mutters/zk-bytecode-stability/internal/config"
	"github.com/casks-mutters/zk-bytecode-stability/internal/history"
	"github.com/casks-mutters/zk-bytecode-stability/internal/logging"
	"github.com/casks-mutters/zk-bytecode-stability/internal/output"
	"github.com/casks-mutters/zk-bytecode-stability/internal/sampler"
	"github.com/casks-mutters/zk-bytecode-stability/internal/shutdown"
	"github.com/casks-mutters/zk-bytecode-stability/internal/validation"
	"github.com/casks-mutters/zk-bytecode-stability/pkg/models"
)

var (
	// 基础参数
	rpcURL      string
	address     string
	fromBlock   uint64
	toBlock     uint64
	step        uint64
	timeoutSecs int
	jsonOutput  bool

	// 高级参数
	configFile string
	verbose    bool
	saveReport bool

	// 监控模式参数
	watchInterval string

	// 历史查询参数
	historyLimit int
)

// 退出码：0=稳定，2=不稳定或运行失败
const exitUnstable = 2

func main() {
	rootCmd := &cobra.Command{
		Use:   "zkstability",
		Short: "合约字节码稳定性检查工具",
		Long: `检查合约字节码和部署状态在历史区块范围内是否保持稳定，
用于检测固定地址上未经授权的字节码替换（stealth upgrade）`,
		RunE:          runCheck,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// 基础参数
	rootCmd.Flags().StringVar(&rpcURL, "rpc", "", "EVM RPC节点地址（默认从配置或RPC_URL环境变量读取）")
	rootCmd.Flags().StringVar(&address, "address", "", "要检查的合约地址")
	rootCmd.Flags().Uint64Var(&fromBlock, "from-block", 0, "起始区块号")
	rootCmd.Flags().Uint64Var(&toBlock, "to-block", 0, "结束区块号")
	rootCmd.Flags().Uint64Var(&step, "step", 0, "采样步长（默认从配置读取）")
	rootCmd.Flags().IntVar(&timeoutSecs, "timeout", 0, "单次RPC请求超时（秒）")
	rootCmd.Flags().BoolVar(&jsonOutput, "json", false, "以JSON格式输出结果")

	// 高级参数
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "configs/config.yaml", "配置文件路径")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "详细输出")
	rootCmd.Flags().BoolVar(&saveReport, "save", false, "将报告保存到历史存储")

	// 监控子命令
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "周期性检查并发布结果",
		RunE:  runWatch,
	}
	watchCmd.Flags().StringVar(&rpcURL, "rpc", "", "EVM RPC节点地址")
	watchCmd.Flags().StringVar(&address, "address", "", "要检查的合约地址")
	watchCmd.Flags().Uint64Var(&fromBlock, "from-block", 0, "起始区块号")
	watchCmd.Flags().Uint64Var(&toBlock, "to-block", 0, "结束区块号")
	watchCmd.Flags().Uint64Var(&step, "step", 0, "采样步长")
	watchCmd.Flags().StringVar(&watchInterval, "interval", "", "轮询间隔（默认从配置读取）")

	// 历史查询子命令
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "查看历史检查报告",
		RunE:  showHistory,
	}
	historyCmd.Flags().StringVar(&address, "address", "", "按合约地址过滤")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "返回的报告数量")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(historyCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "执行失败: %v\n", err)
		os.Exit(exitUnstable)
	}
}

// newLogger 创建进程日志器
func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	// JSON输出模式下日志走stderr，避免污染机器可读输出
	if jsonOutput {
		logger.SetOutput(os.Stderr)
	}
	return logger
}

// loadConfig 加载配置并应用命令行覆盖
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}

	if rpcURL != "" {
		cfg.Node.URL = rpcURL
	}
	if timeoutSecs > 0 {
		cfg.Node.Timeout = fmt.Sprintf("%ds", timeoutSecs)
	}
	if step == 0 {
		step = cfg.Sampler.DefaultStep
	}

	return cfg, nil
}

// runCheck 执行一次稳定性检查
func runCheck(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	report, err := executeCheck(context.Background(), cfg, logger)
	if err != nil {
		return err
	}

	if saveReport {
		store, err := history.NewStore(cfg.History.Path, logger)
		if err != nil {
			logger.Warnf("打开历史存储失败: %v", err)
		} else {
			defer store.Close()
			if err := store.SaveReport(report); err != nil {
				logger.Warnf("保存报告失败: %v", err)
			}
		}
	}

	printReport(report)

	if !report.Stable {
		os.Exit(exitUnstable)
	}
	return nil
}

// executeCheck 构造读取器和采样器并运行检查
func executeCheck(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*models.StabilityReport, error) {
	contractAddr, err := validation.ValidateAddress(address)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateRange(fromBlock, toBlock, step); err != nil {
		return nil, err
	}

	reader, err := chain.NewEthReader(chain.ReaderConfig{
		URL:            cfg.Node.URL,
		RequestTimeout: cfg.Node.RequestTimeout(),
	}, logger)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	smp := sampler.New(reader, cfg.Retry.ToPolicy(), logger)
	return smp.Run(ctx, sampler.Params{
		Address:   contractAddr,
		FromBlock: fromBlock,
		ToBlock:   toBlock,
		Step:      step,
	})
}

// printReport 输出报告
func printReport(report *models.StabilityReport) {
	if jsonOutput {
		data, err := output.RenderJSON(report)
		if err != nil {
			fmt.Fprintf(os.Stderr, "序列化报告失败: %v\n", err)
			return
		}
		fmt.Println(string(data))
		return
	}
	fmt.Print(output.RenderText(report))
}

// runWatch 监控模式：周期性执行检查，结果写入历史存储并发布
func runWatch(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	interval := cfg.Sampler.WatchIntervalDuration()
	if watchInterval != "" {
		d, err := time.ParseDuration(watchInterval)
		if err != nil || d <= 0 {
			return fmt.Errorf("无效的轮询间隔: %s", watchInterval)
		}
		interval = d
	}

	store, err := history.NewStore(cfg.History.Path, logger)
	if err != nil {
		return err
	}

	// 长驻模式下启用结构化日志，便于日志采集系统解析
	structured, err := logging.NewStructuredLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("初始化结构化日志失败: %w", err)
	}

	// 组装报告输出器
	outputs := []output.Output{}
	fileOut, err := output.NewFileOutput(cfg.Output.Directory, logger)
	if err != nil {
		return err
	}
	outputs = append(outputs, fileOut)

	if cfg.Output.Kafka != nil && cfg.Output.Kafka.Enabled {
		kafkaOut, err := output.NewKafkaOutput(cfg.Output.Kafka.Brokers, cfg.Output.Kafka.Topic, logger)
		if err != nil {
			return err
		}
		outputs = append(outputs, kafkaOut)
	}
	outputter := output.NewMultiOutput(outputs...)

	gs := shutdown.NewGracefulShutdown(30*time.Second, logger)
	gs.Register("flush_outputs", func(ctx context.Context) error {
		return outputter.Close()
	}, shutdown.OrderFlushOutputs)
	gs.Register("close_history", func(ctx context.Context) error {
		return store.Close()
	}, shutdown.OrderCloseHistory)
	gs.Start()

	ctx := gs.Context()
	logger.Infof("监控模式已启动，轮询间隔: %v", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// 启动时先执行一次
	runWatchCheck(ctx, cfg, store, outputter, logger, structured)

	for {
		select {
		case <-ticker.C:
			runWatchCheck(ctx, cfg, store, outputter, logger, structured)
		case <-ctx.Done():
			logger.Info("监控模式已停止")
			gs.Wait()
			return nil
		}
	}
}

// runWatchCheck 监控模式下的单轮检查
func runWatchCheck(ctx context.Context, cfg *config.Config, store *history.Store, outputter output.Output, logger *logrus.Logger, structured *logging.StructuredLogger) {
	checkLog := logging.NewCheckLogger(structured, address, fromBlock, toBlock)

	report, err := executeCheck(ctx, cfg, logger)
	if err != nil {
		logger.Errorf("检查失败: %v", err)
		checkLog.Error("检查失败", "error", err.Error())
		return
	}

	if err := store.SaveReport(report); err != nil {
		logger.Errorf("保存报告失败: %v", err)
	}
	if err := outputter.WriteReport(report); err != nil {
		logger.Errorf("输出报告失败: %v", err)
	}

	checkLog.Info("检查完成",
		"status", report.Status,
		"sampled_count", report.SampledCount,
		"elapsed_ms", report.ElapsedMS)

	if !report.Stable {
		logger.Warnf("⚠️ 检测到不稳定: %s", report.Summary())
	}
}

// showHistory 显示历史检查报告
func showHistory(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	store, err := history.NewStore(cfg.History.Path, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	reports, err := store.ListReports(address, historyLimit)
	if err != nil {
		return fmt.Errorf("查询历史报告失败: %w", err)
	}

	if len(reports) == 0 {
		fmt.Println("暂无历史报告")
		return nil
	}

	fmt.Printf("📊 历史检查报告（共 %d 条）\n", len(reports))
	fmt.Println(strings.Repeat("=", 60))
	for _, report := range reports {
		fmt.Printf("%s  %s\n", report.StartedAt.Format("2006-01-02 15:04:05"), report.Summary())
	}

	return nil
}
