package translator

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/epubtrans/epubtrans/internal/config"
	"github.com/epubtrans/epubtrans/internal/epub"
	"github.com/epubtrans/epubtrans/internal/progress"
	"github.com/epubtrans/epubtrans/pkg/providers"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pipeline 翻译流水线：解析 EPUB、逐章提取-编码-翻译-还原-插入译文、
// 进度持久化、重新打包。章节间并发受信号量限制，单章失败不影响其他章节。
type Pipeline struct {
	inputPath  string
	outputPath string
	provider   providers.Provider
	cfg        *config.Config
	logger     *zap.Logger
	onProgress Callback

	codec     *epub.Codec
	scheduler *Scheduler
	store     *progress.Store
}

// NewPipeline 创建流水线
func NewPipeline(inputPath, outputPath string, provider providers.Provider,
	cfg *config.Config, logger *zap.Logger, onProgress Callback,
) *Pipeline {
	if onProgress == nil {
		onProgress = func(Event) {}
	}
	return &Pipeline{
		inputPath:  inputPath,
		outputPath: outputPath,
		provider:   provider,
		cfg:        cfg,
		logger:     logger,
		onProgress: onProgress,
		codec:      epub.NewCodec(),
		scheduler: NewScheduler(provider, logger, SchedulerOptions{
			SourceLang:          cfg.SourceLang,
			TargetLang:          cfg.TargetLang,
			BaseTimeout:         time.Duration(cfg.RequestTimeout) * time.Second,
			TimeoutPerKChar:     time.Duration(cfg.TimeoutPerKChar) * time.Second,
			SimilarityThreshold: cfg.SimilarityThreshold,
		}),
	}
}

// CacheDir 返回本次运行使用的缓存目录
func (p *Pipeline) CacheDir() string {
	if p.cfg.CacheDir != "" {
		return p.cfg.CacheDir
	}
	return strings.TrimSuffix(p.inputPath, ".epub") + ".et-cache"
}

// Run 执行完整翻译流程，返回输出文件路径
func (p *Pipeline) Run(ctx context.Context) (string, error) {
	input, err := os.Open(p.inputPath)
	if err != nil {
		return "", fmt.Errorf("打开输入文件失败: %w", err)
	}
	book, err := epub.Parse(input)
	input.Close()
	if err != nil {
		return "", err
	}

	total := len(book.Sections)
	p.logger.Info("starting translation session",
		zap.String("input", p.inputPath),
		zap.String("title", book.Meta.Title),
		zap.Int("sections", total),
		zap.String("provider", p.provider.Name()),
		zap.Int("sectionConcurrency", p.cfg.SectionConcurrency))

	p.store = progress.Open(p.CacheDir(), p.logger)

	// 续翻判断在并发开始前一次性完成
	valid := make(map[string]bool, total)
	for _, sec := range book.Sections {
		valid[sec.Path] = true
	}
	completed := p.store.CompletedPaths(valid)

	var mu sync.Mutex
	translated := make(map[string][]byte, total)
	errorCount := 0

	for path := range completed {
		if content, ok := p.store.CachedContent(path); ok {
			translated[path] = content
		}
	}

	concurrency := int64(p.cfg.SectionConcurrency)
	if concurrency < 1 {
		concurrency = 1
	}
	sem := semaphore.NewWeighted(concurrency)
	var wg sync.WaitGroup
	sessionStart := time.Now()

	for idx, sec := range book.Sections {
		wg.Add(1)
		go func(idx int, sec *epub.Section) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			if completed[sec.Path] {
				p.logger.Info("skip", zap.Int("section", idx+1), zap.Int("total", total), zap.String("path", sec.Path))
				p.onProgress(Event{
					SectionIndex: idx, SectionTotal: total,
					SectionTitle: sec.Href, Status: StatusSkipped,
				})
				return
			}

			p.logger.Info("start", zap.Int("section", idx+1), zap.Int("total", total), zap.String("path", sec.Path))
			start := time.Now()
			content, failed, err := p.translateSection(ctx, idx, total, sec, book.Meta.OPFDir)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				errorCount++
				p.logger.Error("section failed",
					zap.Int("section", idx+1), zap.String("path", sec.Path), zap.Error(err))
				p.onProgress(Event{
					SectionIndex: idx, SectionTotal: total,
					SectionTitle: sec.Href, Status: StatusError,
					Message: err.Error(),
				})
				return
			}

			translated[sec.Path] = content
			elapsed := time.Since(start)

			if failed > 0 {
				// 有失败单元的章节不写进度记录，下次运行整章重翻
				errorCount++
				p.logger.Warn("section finished with failed units",
					zap.Int("section", idx+1), zap.String("path", sec.Path), zap.Int("failedUnits", failed))
				p.onProgress(Event{
					SectionIndex: idx, SectionTotal: total,
					SectionTitle: sec.Href, Status: StatusError,
					Message: fmt.Sprintf("%d 个段落翻译失败", failed),
				})
				return
			}

			if err := p.store.MarkCompleted(sec.Path, elapsed, content); err != nil {
				p.logger.Warn("failed to persist progress", zap.String("path", sec.Path), zap.Error(err))
			}
			p.logger.Info("done",
				zap.Int("section", idx+1), zap.Int("total", total),
				zap.String("path", sec.Path), zap.Duration("elapsed", elapsed))
		}(idx, sec)
	}

	wg.Wait()

	output, err := os.Create(p.outputPath)
	if err != nil {
		return "", fmt.Errorf("创建输出文件失败: %w", err)
	}
	// 部分章节失败时，已翻译的章节仍正常打包输出
	if err := epub.Pack(book, translated, output); err != nil {
		output.Close()
		return "", err
	}
	if err := output.Close(); err != nil {
		return "", err
	}

	p.logger.Info("session finished",
		zap.Int("sections", total),
		zap.Int("errors", errorCount),
		zap.Duration("elapsed", time.Since(sessionStart)))

	// 仅全部成功时清理缓存，有失败时保留供续翻
	if errorCount == 0 {
		if err := p.store.Clear(); err != nil {
			p.logger.Warn("failed to clear cache dir", zap.Error(err))
		}
	}

	return p.outputPath, nil
}

// translateSection 翻译单章，返回新的章节内容和失败单元数
func (p *Pipeline) translateSection(ctx context.Context, idx, total int, sec *epub.Section, opfDir string) ([]byte, int, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(sec.Content))
	if err != nil {
		return nil, 0, fmt.Errorf("解析章节失败: %w", err)
	}

	units := epub.ExtractUnits(doc)
	n := len(units)
	if n == 0 {
		p.onProgress(Event{
			SectionIndex: idx, SectionTotal: total, SectionTitle: sec.Href,
			Status: StatusDone,
		})
		return sec.Content, 0, nil
	}

	epub.InjectStylesheet(doc, epub.StylesheetHref(sec.Path, opfDir))

	// 编码：剥离/替换内联标记，引擎只看到近纯文本
	markedTexts := make([]string, n)
	maps := make([]*epub.PlaceholderMap, n)
	for i, u := range units {
		marked, pm, encErr := p.codec.Encode(u.RawMarkup)
		if encErr != nil {
			// 降级为纯文本：丢格式可以接受，丢正文不行
			p.logger.Warn("encode failed, falling back to plain text",
				zap.String("path", sec.Path), zap.Int("unit", i), zap.Error(encErr))
			marked, pm = u.PlainText, nil
		}
		markedTexts[i] = marked
		maps[i] = pm
	}

	batches := PlanBatches(markedTexts, p.cfg.BatchMaxUnits, p.cfg.BatchMaxChars)
	p.logger.Debug("section planned",
		zap.String("path", sec.Path),
		zap.Int("units", n),
		zap.Int("batches", len(batches)))

	results := make([]UnitResult, n)
	var unitDone int32
	var progressMu sync.Mutex
	emitProgress := func(inc int) {
		progressMu.Lock()
		unitDone += int32(inc)
		done := int(unitDone)
		progressMu.Unlock()
		p.onProgress(Event{
			SectionIndex: idx, SectionTotal: total, SectionTitle: sec.Href,
			UnitIndex: done, UnitTotal: n, Status: StatusTranslating,
		})
	}
	emitProgress(0)

	runBatch := func(b Batch) {
		texts := make([]string, len(b.Ordinals))
		for j, ord := range b.Ordinals {
			texts[j] = markedTexts[ord]
		}
		batchResults := p.scheduler.TranslateBatch(ctx, texts)
		for j, r := range batchResults {
			results[b.Ordinals[j]] = r
		}
		emitProgress(len(b.Ordinals))
	}

	// 上下文无关的引擎允许批次并发；依赖前文的引擎保持串行以维持术语一致
	if p.provider.ContextFree() && p.cfg.BatchConcurrency > 1 {
		var g errgroup.Group
		g.SetLimit(p.cfg.BatchConcurrency)
		for _, b := range batches {
			b := b
			g.Go(func() error {
				runBatch(b)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for _, b := range batches {
			runBatch(b)
		}
	}

	// 应用阶段串行执行，同一章节的 DOM 不做并发修改
	failed := 0
	for i, r := range results {
		if r.Err != nil {
			failed++
			p.onProgress(Event{
				SectionIndex: idx, SectionTotal: total, SectionTitle: sec.Href,
				UnitIndex: i, UnitTotal: n, Status: StatusError,
				Message: fmt.Sprintf("段落 %d: %v", i+1, r.Err),
			})
			continue
		}
		restored := p.codec.Decode(r.Text, maps[i])
		epub.InsertTranslation(units[i], restored, p.cfg.TargetLang)
	}

	// 有失败段落时由 Run 统一上报章节级错误，这里不再报完成
	if failed == 0 {
		p.onProgress(Event{
			SectionIndex: idx, SectionTotal: total, SectionTitle: sec.Href,
			UnitIndex: n, UnitTotal: n, Status: StatusDone,
		})
	}

	content, err := epub.Serialize(doc, sec.Content)
	if err != nil {
		return nil, failed, err
	}
	return content, failed, nil
}
