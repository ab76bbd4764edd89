package amqp

import (
	"encoding/json"
	"time"

	"expensemcp/internal/core"
)

// ExpenseCreatedEvent announces a newly stored expense to downstream consumers.
type ExpenseCreatedEvent struct {
	ID          int64     `json:"id"`
	Date        string    `json:"date"`
	Amount      float64   `json:"amount"`
	Category    string    `json:"category"`
	Subcategory string    `json:"subcategory"`
	Note        string    `json:"note"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewExpenseCreatedEvent(e core.Expense) *ExpenseCreatedEvent {
	return &ExpenseCreatedEvent{
		ID:          e.ID,
		Date:        e.Date,
		Amount:      e.Amount,
		Category:    e.Category,
		Subcategory: e.Subcategory,
		Note:        e.Note,
		Timestamp:   time.Now(),
	}
}

// ToJSON converts the event to JSON bytes
func (m *ExpenseCreatedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
