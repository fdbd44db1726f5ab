// =============================================================================
// FlowState 命令行入口
// =============================================================================
// 摘要流水线的命令行工具
//
// 使用方法:
//
//	flowstate describe                                       # 输出图定义（YAML）
//	flowstate describe --format json                         # 输出图定义（JSON）
//	flowstate run --page page.json --responses replay.yaml   # 生成摘要
//	flowstate run --page page.json --responses replay.yaml --verbose
//	flowstate version                                        # 显示版本信息
// =============================================================================

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/flowstate/config"
	"github.com/BaSui01/flowstate/internal/metrics"
	"github.com/BaSui01/flowstate/internal/telemetry"
	"github.com/BaSui01/flowstate/pipeline"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute 分发子命令并返回进程退出码
func execute(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	var err error
	switch args[0] {
	case "describe":
		err = runDescribe(args[1:], stdout)
	case "run":
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		err = runSummary(ctx, args[1:], stdout)
	case "version":
		printVersion(stdout)
	case "help", "-h", "--help":
		printUsage(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}

	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// =============================================================================
// 🗺️ describe 命令
// =============================================================================

func runDescribe(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("describe", flag.ContinueOnError)
	format := fs.String("format", "yaml", "Output format: yaml or json")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// describe 不调用模型，空回放即可编译出图结构
	s, err := pipeline.NewSummarizer(pipeline.NewReplayCompleter(nil))
	if err != nil {
		return err
	}
	def := s.Graph().Definition()

	var out string
	switch *format {
	case "yaml":
		out, err = def.ToYAML()
	case "json":
		out, err = def.ToJSON()
	default:
		return fmt.Errorf("unsupported format %q (supported: yaml, json)", *format)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, out)
	return nil
}

// =============================================================================
// 📝 run 命令
// =============================================================================

func runSummary(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	pagePath := fs.String("page", "", "Path to the extracted page (JSON)")
	responsesPath := fs.String("responses", "", "Path to recorded model responses (YAML)")
	configPath := fs.String("config", "", "Path to config file")
	prompt := fs.String("prompt", "", "Additional instructions for the writers")
	metricsOut := fs.String("metrics-out", "", "Write Prometheus metrics to this file after the run")
	verbose := fs.Bool("verbose", false, "Print the agent communication log")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *pagePath == "" || *responsesPath == "" {
		return fmt.Errorf("--page and --responses are required")
	}

	// 加载配置
	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 验证配置
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// 初始化日志
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Debug("Starting FlowState",
		zap.String("version", Version),
		zap.String("git_commit", GitCommit),
	)

	// 初始化 OpenTelemetry
	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		if otelProviders == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelProviders.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	page, err := loadPage(*pagePath)
	if err != nil {
		return err
	}
	var completer pipeline.Completer
	completer, err = pipeline.LoadReplay(*responsesPath)
	if err != nil {
		return err
	}

	opts := []pipeline.Option{
		pipeline.WithConfig(*cfg),
		pipeline.WithLogger(logger),
		pipeline.WithTracer(otelProviders.Tracer("github.com/BaSui01/flowstate")),
	}

	var registry *prometheus.Registry
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		collector := metrics.NewCollector(cfg.Metrics.Namespace, registry, logger)
		completer = instrument(completer, collector)
		opts = append(opts,
			pipeline.WithMetrics(collector),
			pipeline.WithCircuitChange(collector.RecordCircuitChange),
		)
	}

	summarizer, err := pipeline.NewSummarizer(completer, opts...)
	if err != nil {
		return err
	}

	var runOpts []pipeline.RunOption
	if *prompt != "" {
		runOpts = append(runOpts, pipeline.WithCustomPrompt(*prompt))
	}
	result, runErr := summarizer.Summarize(ctx, page, runOpts...)

	fmt.Fprintln(stdout, result.Summary)
	if *verbose {
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "---")
		fmt.Fprintln(stdout, result.FormattedLog)
		for _, e := range result.Errors {
			fmt.Fprintf(stdout, "error: %s\n", e)
		}
	}

	if registry != nil && *metricsOut != "" {
		if err := prometheus.WriteToTextfile(*metricsOut, registry); err != nil {
			logger.Warn("failed to write metrics", zap.String("path", *metricsOut), zap.Error(err))
		}
	}
	return runErr
}

func loadPage(path string) (pipeline.Page, error) {
	var page pipeline.Page
	data, err := os.ReadFile(path)
	if err != nil {
		return page, fmt.Errorf("failed to read page: %w", err)
	}
	if err := json.Unmarshal(data, &page); err != nil {
		return page, fmt.Errorf("failed to parse page: %w", err)
	}
	return page, nil
}

// instrument 记录每次模型调用的耗时与结果
func instrument(next pipeline.Completer, collector *metrics.Collector) pipeline.Completer {
	return pipeline.CompleterFunc(func(ctx context.Context, req pipeline.Request) (string, error) {
		start := time.Now()
		resp, err := next.Complete(ctx, req)
		collector.RecordCompletion(req.Stage, err, time.Since(start))
		return resp, err
	})
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "FlowState %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `FlowState - multi-agent page summaries

Usage:
  flowstate <command> [options]

Commands:
  describe  Print the summary graph definition
  run       Summarize a page using recorded model responses
  version   Show version information
  help      Show this help message

Options for 'describe':
  --format <yaml|json>   Output format (default yaml)

Options for 'run':
  --page <path>          Extracted page (JSON)
  --responses <path>     Recorded model responses per stage (YAML)
  --config <path>        Path to configuration file (YAML)
  --prompt <text>        Additional instructions for the writers
  --metrics-out <path>   Write Prometheus metrics after the run
  --verbose              Print the agent communication log

Examples:
  flowstate describe --format json
  flowstate run --page page.json --responses replay.yaml
  flowstate run --page page.json --responses replay.yaml --config flowstate.yaml --verbose
  flowstate version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	// 解析日志级别
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	// 配置编码器
	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}

	return logger
}
