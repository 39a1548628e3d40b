package domain

// TodoFilter restricts which todos a query matches. A nil field matches all.
type TodoFilter struct {
	Completed *bool
}

// SortField names a sortable todo column.
type SortField string

const (
	SortByCreatedAt SortField = "created_at"
	SortByUpdatedAt SortField = "updated_at"
	SortByTitle     SortField = "title"
)

// TodoSort orders query results.
type TodoSort struct {
	Field SortField
	Desc  bool
}

// TodoQuery is a filtered, sorted window over the todo collection.
// Limit <= 0 means no limit.
type TodoQuery struct {
	Filter TodoFilter
	Sort   TodoSort
	Skip   int
	Limit  int
}
