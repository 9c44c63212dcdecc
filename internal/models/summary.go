package models

// SummaryStatus - результат запуска дневной сводки
type SummaryStatus string

// Статусы сводки
const (
	SummaryTooEarly    SummaryStatus = "too_early"
	SummaryAlreadySent SummaryStatus = "already_sent"
	SummarySent        SummaryStatus = "sent"
)

// SummaryResult - ответ планировщика сводки
type SummaryResult struct {
	Status     SummaryStatus `json:"status"`
	Reason     string        `json:"reason,omitempty"`
	LocalDate  string        `json:"local_date"`
	LocalTime  string        `json:"local_time"`
	Recipients int           `json:"recipients,omitempty"`
	Delivered  int           `json:"delivered,omitempty"`
	Stats      *WindowStats  `json:"stats,omitempty"`
}
