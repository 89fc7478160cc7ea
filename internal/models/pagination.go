package models

// Pagination defaults shared by every list endpoint
const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// PageQuery is the canonical pagination and sorting input of list queries
type PageQuery struct {
	Page      int    `form:"page"`
	Limit     int    `form:"limit"`
	SortBy    string `form:"sortBy"`
	SortOrder string `form:"sortOrder"`
}

// Normalize clamps page and limit into their allowed ranges
func (q PageQuery) Normalize() PageQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultPageLimit
	}
	if q.Limit > MaxPageLimit {
		q.Limit = MaxPageLimit
	}
	if q.SortOrder != "asc" {
		q.SortOrder = "desc"
	}
	return q
}

// Skip returns the number of records preceding the requested page
func (q PageQuery) Skip() int {
	return (q.Page - 1) * q.Limit
}

// Page is the list envelope returned by every list endpoint
type Page[T any] struct {
	Docs        []T   `json:"docs"`
	TotalDocs   int64 `json:"totalDocs"`
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	TotalPages  int   `json:"totalPages"`
	HasNextPage bool  `json:"hasNextPage"`
	HasPrevPage bool  `json:"hasPrevPage"`
}

// NewPage builds the envelope for one page of results
func NewPage[T any](docs []T, total int64, q PageQuery) Page[T] {
	if docs == nil {
		docs = []T{}
	}
	totalPages := 0
	if q.Limit > 0 {
		totalPages = int((total + int64(q.Limit) - 1) / int64(q.Limit))
	}
	return Page[T]{
		Docs:        docs,
		TotalDocs:   total,
		Page:        q.Page,
		Limit:       q.Limit,
		TotalPages:  totalPages,
		HasNextPage: q.Page < totalPages,
		HasPrevPage: q.Page > 1,
	}
}

// DashboardStats is the response of GET /admin/dashboard/stats
type DashboardStats struct {
	PollsByStatus            map[PollStatus]int64 `json:"pollsByStatus"`
	TotalStaked              int64                `json:"totalStaked"`
	TotalPaidOut             int64                `json:"totalPaidOut"`
	TotalRefunded            int64                `json:"totalRefunded"`
	PlatformFeesRetained     int64                `json:"platformFeesRetained"`
	TotalDeposits            int64                `json:"totalDeposits"`
	TotalWithdrawals         int64                `json:"totalWithdrawals"`
	PendingWithdrawals       int64                `json:"pendingWithdrawals"`
	PendingWithdrawalsAmount int64                `json:"pendingWithdrawalsAmount"`
	WalletCount              int64                `json:"walletCount"`
}
