package domain

// GroupBy selects the bucketing dimension for a time rollup.
type GroupBy string

const (
	GroupByTask     GroupBy = "task"
	GroupByCategory GroupBy = "category"
	GroupByDay      GroupBy = "day"
	GroupByWeek     GroupBy = "week"
	GroupByMonth    GroupBy = "month"
)

// Valid reports whether g is one of the supported grouping dimensions.
func (g GroupBy) Valid() bool {
	switch g {
	case GroupByTask, GroupByCategory, GroupByDay, GroupByWeek, GroupByMonth:
		return true
	}
	return false
}

// Bucket is one row of an aggregation result. Buckets are derived on every
// call and never persisted.
type Bucket struct {
	Key          string `json:"key"`
	Label        string `json:"label"`
	TotalSeconds int    `json:"total_seconds"`
	Count        int    `json:"count"`
	Formatted    string `json:"formatted"`
}
