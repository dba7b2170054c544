package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/epubtrans/epubtrans/internal/translator"
	"github.com/jedib0t/go-pretty/v6/progress"
)

// progressDisplay 把翻译进度事件渲染成终端进度条，每个章节一条
type progressDisplay struct {
	mu       sync.Mutex
	pw       progress.Writer
	trackers map[int]*progress.Tracker

	done    int
	skipped int
	failed  int
}

func newProgressDisplay(out io.Writer) *progressDisplay {
	pw := progress.NewWriter()
	pw.SetOutputWriter(out)
	pw.SetStyle(progress.StyleDefault)
	pw.Style().Colors = progress.StyleColorsExample
	pw.Style().Options.PercentFormat = "%4.1f%%"
	pw.Style().Visibility.ETA = false
	pw.Style().Visibility.Speed = false
	pw.Style().Visibility.Value = true
	pw.SetUpdateFrequency(200 * time.Millisecond)
	pw.SetAutoStop(false)
	pw.SetTrackerLength(30)
	pw.SetMessageLength(36)

	return &progressDisplay{
		pw:       pw,
		trackers: make(map[int]*progress.Tracker),
	}
}

func (d *progressDisplay) Start() {
	go d.pw.Render()
}

func (d *progressDisplay) Stop() {
	d.pw.Stop()
	// 等待渲染循环清场，避免和后续输出交错
	for d.pw.IsRenderInProgress() {
		time.Sleep(10 * time.Millisecond)
	}
}

// Handle 消费流水线进度事件。回调可能来自多个章节协程，内部加锁
func (d *progressDisplay) Handle(ev translator.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch ev.Status {
	case translator.StatusSkipped:
		d.skipped++

	case translator.StatusTranslating:
		t := d.tracker(ev)
		t.SetValue(int64(ev.UnitIndex))

	case translator.StatusDone:
		t := d.tracker(ev)
		t.SetValue(int64(ev.UnitTotal))
		t.MarkAsDone()
		d.done++

	case translator.StatusError:
		// UnitTotal==0 是章节级失败；段落级失败由章节事件统一收尾
		if ev.UnitTotal == 0 {
			if t, ok := d.trackers[ev.SectionIndex]; ok {
				t.MarkAsErrored()
			}
			d.failed++
		}
	}
}

// Counts 返回完成、跳过、失败的章节数
func (d *progressDisplay) Counts() (done, skipped, failed int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done, d.skipped, d.failed
}

func (d *progressDisplay) tracker(ev translator.Event) *progress.Tracker {
	t, ok := d.trackers[ev.SectionIndex]
	if !ok {
		t = &progress.Tracker{
			Message: fmt.Sprintf("[%d/%d] %s", ev.SectionIndex+1, ev.SectionTotal, ev.SectionTitle),
			Total:   int64(ev.UnitTotal),
			Units:   progress.UnitsDefault,
		}
		d.trackers[ev.SectionIndex] = t
		d.pw.AppendTracker(t)
	}
	return t
}
