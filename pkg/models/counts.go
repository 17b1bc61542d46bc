package models

// StatusCounts holds child counts grouped by normalized status, as returned
// by the store's aggregate queries.
type StatusCounts struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}

// Count returns the number of children at the given status.
func (c StatusCounts) Count(status string) int {
	return c.ByStatus[NormalizeStatus(status)]
}

// AllIn reports whether every child is at one of the given statuses.
// Returns false when there are no children.
func (c StatusCounts) AllIn(statuses ...string) bool {
	if c.Total == 0 {
		return false
	}
	n := 0
	for _, s := range statuses {
		n += c.Count(s)
	}
	return n == c.Total
}
