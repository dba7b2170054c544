package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/epubtrans/epubtrans/internal/config"
	"github.com/epubtrans/epubtrans/internal/logger"
	"github.com/epubtrans/epubtrans/internal/translator"
	"github.com/epubtrans/epubtrans/pkg/providers"
	"github.com/epubtrans/epubtrans/pkg/providers/ollama"
	"github.com/epubtrans/epubtrans/pkg/providers/openai"
	"github.com/epubtrans/epubtrans/pkg/providers/raw"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// 命令行标志变量
	cfgFile      string
	sourceLang   string
	targetLang   string
	providerName string
	modelName    string
	temperature  float64
	modeName     string
	concurrency  int
	batchSize    int
	batchChars   int
	cacheDir     string
	ollamaURL    string
	apiKey       string
	apiBase      string
	debugMode    bool
	verboseMode  bool
	dryRun       bool // 预演模式，引擎原样回显，不产生任何请求
	noResume     bool // 忽略已有进度，整本重翻
)

// NewRootCommand 创建根命令
func NewRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "epubtrans [flags] input.epub [output.epub]",
		Short: "EPUB 双语翻译工具，译文以段落为单位插入原文之后",
		Long: `EPUB 双语翻译工具。逐段提取章节正文，调用翻译引擎生成译文，
并把译文插入到对应原文段落之后，输出双语对照版 EPUB。
翻译进度会持久化到缓存目录，中断后重新运行自动续翻。

支持的翻译引擎:
  - ollama: Ollama 本地大语言模型
  - openai: OpenAI 兼容接口 (OpenAI / DeepSeek / vLLM 等)
  - raw:    原样回显，仅用于调试`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildDate),
		Args:          cobra.RangeArgs(1, 2),
		RunE:          runTranslate,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	addGlobalFlags(rootCmd)

	rootCmd.AddCommand(NewModelsCommand())
	rootCmd.AddCommand(NewLanguagesCommand())

	return rootCmd
}

// addGlobalFlags 添加全局标志
func addGlobalFlags(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径")
	rootCmd.PersistentFlags().StringVar(&sourceLang, "from", "", "源语言代码，如 en")
	rootCmd.PersistentFlags().StringVar(&targetLang, "to", "", "目标语言代码，如 zh")
	rootCmd.PersistentFlags().StringVar(&providerName, "provider", "", "翻译引擎 (ollama, openai, raw)")
	rootCmd.PersistentFlags().StringVar(&modelName, "model", "", "模型名称")
	rootCmd.PersistentFlags().Float64Var(&temperature, "temperature", -1, "采样温度，负值表示使用模式默认值")
	rootCmd.PersistentFlags().StringVar(&modeName, "mode", "", "翻译模式 (speed, quality)")
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 0, "并行翻译的章节数")
	rootCmd.PersistentFlags().IntVar(&batchSize, "batch-size", 0, "每批最大段落数")
	rootCmd.PersistentFlags().IntVar(&batchChars, "batch-chars", 0, "每批最大字符数")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "进度缓存目录，默认 <输入文件>.et-cache")
	rootCmd.PersistentFlags().StringVar(&ollamaURL, "ollama-url", "", "Ollama 服务地址")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "OpenAI 兼容接口的 API Key")
	rootCmd.PersistentFlags().StringVar(&apiBase, "api-base", "", "OpenAI 兼容接口的 Base URL")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "启用调试模式")
	rootCmd.PersistentFlags().BoolVarP(&verboseMode, "verbose", "v", false, "显示详细日志（包括翻译片段）")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "预演模式，不调用翻译引擎，译文为原文回显")
	rootCmd.PersistentFlags().BoolVar(&noResume, "no-resume", false, "忽略已有进度缓存，整本重新翻译")
}

// runTranslate 执行翻译
func runTranslate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	updateConfigFromFlags(cmd, cfg)

	inputPath := args[0]
	if _, err := os.Stat(inputPath); err != nil {
		return fmt.Errorf("输入文件不可用: %w", err)
	}
	outputPath := defaultOutputPath(inputPath)
	if len(args) == 2 {
		outputPath = args[1]
	}

	log := logger.NewLogger(cfg.Debug, cfg.Verbose)
	if cfg.Debug {
		// 调试模式下会话日志同时写到输出文件旁
		log = logger.NewFileLogger(cfg.Debug, cfg.Verbose,
			strings.TrimSuffix(outputPath, ".epub")+".log")
	}
	defer func() {
		_ = log.Sync()
	}()

	if dryRun {
		cfg.Provider = "raw"
		// 回显译文与原文完全相同，相似度校验必须关掉
		cfg.SimilarityThreshold = 0
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := provider.HealthCheck(ctx); err != nil {
		log.Error("翻译引擎不可用", zap.String("provider", provider.Name()), zap.Error(err))
		return fmt.Errorf("翻译引擎 %s 不可用: %w", provider.Name(), err)
	}

	display := newProgressDisplay(os.Stderr)
	pipeline := translator.NewPipeline(inputPath, outputPath, provider, cfg, log, display.Handle)

	if noResume {
		if err := os.RemoveAll(pipeline.CacheDir()); err != nil {
			log.Warn("清理进度缓存失败", zap.Error(err))
		}
	}

	display.Start()

	start := time.Now()
	out, err := pipeline.Run(ctx)
	display.Stop()
	if err != nil {
		log.Error("翻译失败", zap.Error(err))
		return err
	}

	printSummary(out, display, time.Since(start))
	return nil
}

// updateConfigFromFlags 使用命令行参数覆盖配置
func updateConfigFromFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("from") {
		cfg.SourceLang = sourceLang
	}
	if cmd.Flags().Changed("to") {
		cfg.TargetLang = targetLang
	}
	if cmd.Flags().Changed("provider") {
		cfg.Provider = providerName
	}
	if cmd.Flags().Changed("mode") {
		cfg.Mode = modeName
	}
	if cmd.Flags().Changed("temperature") {
		cfg.Temperature = temperature
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.SectionConcurrency = concurrency
	}
	if cmd.Flags().Changed("batch-size") {
		cfg.BatchMaxUnits = batchSize
	}
	if cmd.Flags().Changed("batch-chars") {
		cfg.BatchMaxChars = batchChars
	}
	if cmd.Flags().Changed("cache-dir") {
		cfg.CacheDir = cacheDir
	}
	if cmd.Flags().Changed("ollama-url") {
		cfg.Ollama.BaseURL = ollamaURL
	}
	if cmd.Flags().Changed("api-key") {
		cfg.OpenAI.APIKey = apiKey
	}
	if cmd.Flags().Changed("api-base") {
		cfg.OpenAI.BaseURL = apiBase
	}
	if cmd.Flags().Changed("model") {
		cfg.Ollama.Model = modelName
		cfg.OpenAI.Model = modelName
	}
	if cmd.Flags().Changed("debug") {
		cfg.Debug = debugMode
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = verboseMode
	}
}

// buildProvider 根据配置创建翻译引擎
func buildProvider(cfg *config.Config) (providers.Provider, error) {
	mode := providers.ModeSpeed
	if cfg.Mode == "quality" {
		mode = providers.ModeQuality
	}

	switch strings.ToLower(cfg.Provider) {
	case "ollama":
		return ollama.New(ollama.Config{
			BaseURL:     cfg.Ollama.BaseURL,
			Model:       cfg.Ollama.Model,
			Temperature: cfg.EffectiveTemperature(),
			Mode:        mode,
		}), nil
	case "openai":
		if cfg.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("openai 引擎需要 API Key (--api-key 或 EPUBTRANS_OPENAI_API_KEY)")
		}
		return openai.New(openai.Config{
			APIKey:      cfg.OpenAI.APIKey,
			BaseURL:     cfg.OpenAI.BaseURL,
			Model:       cfg.OpenAI.Model,
			Temperature: cfg.EffectiveTemperature(),
			Mode:        mode,
		}), nil
	case "raw":
		return raw.New(), nil
	default:
		return nil, fmt.Errorf("未知的翻译引擎: %s", cfg.Provider)
	}
}

// defaultOutputPath 生成默认输出文件名
func defaultOutputPath(inputPath string) string {
	ext := filepath.Ext(inputPath)
	base := strings.TrimSuffix(inputPath, ext)
	return base + "_bilingual" + ext
}

// printSummary 输出会话统计
func printSummary(outputPath string, display *progressDisplay, elapsed time.Duration) {
	done, skipped, failed := display.Counts()

	fmt.Println()
	color.New(color.FgGreen, color.Bold).Printf("✓ 输出文件: %s\n", outputPath)
	fmt.Printf("  翻译章节: %d  跳过(已完成): %d", done, skipped)
	if failed > 0 {
		fmt.Print("  ")
		color.New(color.FgRed).Printf("失败: %d", failed)
	}
	fmt.Printf("\n  总耗时: %s\n", elapsed.Round(time.Second))
	if failed > 0 {
		color.New(color.FgYellow).Println("  存在失败章节，进度缓存已保留，重新运行相同命令可续翻。")
	}
}
