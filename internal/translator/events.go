package translator

// Status 进度事件状态
type Status string

const (
	StatusTranslating Status = "translating"
	StatusDone        Status = "done"
	StatusSkipped     Status = "skipped"
	StatusError       Status = "error"
)

// Event 进度事件，供 CLI 等消费方订阅
type Event struct {
	SectionIndex int
	SectionTotal int
	SectionTitle string
	UnitIndex    int
	UnitTotal    int
	Status       Status
	Message      string
}

// Callback 进度回调
type Callback func(Event)
