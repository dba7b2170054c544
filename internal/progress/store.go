package progress

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const progressFileName = "progress.json"

// Entry 一个已完成章节的记录
type Entry struct {
	Path        string  `json:"path"`
	DurationSec float64 `json:"duration_sec"`
}

type record struct {
	RunID     string  `json:"run_id"`
	Completed []Entry `json:"completed"`
}

// Store 翻译进度的持久化存储。
// progress.json 是"哪些章节已完成"的唯一事实来源，章节译文缓存在同目录的
// <md5(path)>.xhtml 中；每个章节完成后立即落盘，中断的运行可以续翻。
type Store struct {
	dir    string
	logger *zap.Logger

	mu      sync.Mutex
	runID   string
	entries []Entry
	paths   map[string]bool
}

// Open 打开（或初始化）缓存目录下的进度存储。
// 文件缺失或损坏一律视为"尚无进度"，不报错。
func Open(dir string, logger *zap.Logger) *Store {
	s := &Store{
		dir:    dir,
		logger: logger,
		paths:  make(map[string]bool),
	}

	data, err := os.ReadFile(filepath.Join(dir, progressFileName))
	if err != nil {
		s.runID = uuid.NewString()
		return s
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		logger.Warn("progress file is malformed, starting fresh",
			zap.String("dir", dir), zap.Error(err))
		s.runID = uuid.NewString()
		return s
	}

	s.runID = rec.RunID
	if s.runID == "" {
		s.runID = uuid.NewString()
	}
	s.entries = rec.Completed
	for _, e := range rec.Completed {
		s.paths[e.Path] = true
	}

	logger.Info("resuming from progress file",
		zap.String("dir", dir),
		zap.String("runID", s.runID),
		zap.Int("completedSections", len(rec.Completed)))
	return s
}

// RunID 本次缓存生命周期的标识
func (s *Store) RunID() string {
	return s.runID
}

// CompletedPaths 返回已完成章节路径的快照。
// 续翻判断只在启动时读取一次，并发翻译开始后不再查询。
func (s *Store) CompletedPaths(valid map[string]bool) map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]bool, len(s.paths))
	for p := range s.paths {
		// 进度记录里不属于当前文档的章节直接忽略
		if valid[p] {
			out[p] = true
		}
	}
	return out
}

// CachedContent 读取已完成章节的缓存译文
func (s *Store) CachedContent(path string) ([]byte, bool) {
	data, err := os.ReadFile(s.cachePath(path))
	if err != nil {
		return nil, false
	}
	return data, true
}

// MarkCompleted 记录一个章节完成：写缓存文件并更新进度文件。
// 共享状态的全部写入都在这把锁内完成。
func (s *Store) MarkCompleted(path string, duration time.Duration, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("创建缓存目录失败: %w", err)
	}
	if err := os.WriteFile(s.cachePath(path), content, 0o644); err != nil {
		return fmt.Errorf("写入章节缓存失败: %w", err)
	}

	if !s.paths[path] {
		s.entries = append(s.entries, Entry{
			Path:        path,
			DurationSec: duration.Round(100*time.Millisecond).Seconds(),
		})
		s.paths[path] = true
	}

	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	rec := record{RunID: s.runID, Completed: s.entries}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(s.dir, progressFileName), data, 0o644); err != nil {
		return fmt.Errorf("写入进度文件失败: %w", err)
	}
	return nil
}

// Clear 删除整个缓存目录，仅在全部章节成功后调用
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.RemoveAll(s.dir)
}

func (s *Store) cachePath(sectionPath string) string {
	sum := md5.Sum([]byte(sectionPath))
	return filepath.Join(s.dir, fmt.Sprintf("%x.xhtml", sum))
}
