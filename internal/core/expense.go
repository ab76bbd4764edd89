package core

type (
	// Expense is one stored spending row. Date is kept as the caller sent it
	// (YYYY-MM-DD by convention) and compared lexically by the store.
	Expense struct {
		ID          int64   `json:"id"`
		Date        string  `json:"date"`
		Amount      float64 `json:"amount"`
		Category    string  `json:"category"`
		Subcategory string  `json:"subcategory"`
		Note        string  `json:"note"`
	}

	// NewExpense carries the caller-supplied fields of an insert.
	NewExpense struct {
		Date        string
		Amount      float64
		Category    string
		Subcategory string
		Note        string
	}

	// CategorySummary aggregates the expenses of one category within a date range.
	CategorySummary struct {
		Category string  `json:"category"`
		Total    float64 `json:"total"`
		Count    int64   `json:"count"`
	}

	// DateRange is an inclusive [Start, End] pair of date strings.
	DateRange struct {
		Start string
		End   string
	}
)
