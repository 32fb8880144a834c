package model

import "time"

type SortField string

const (
	SortByCreatedAt SortField = "createdAt"
	SortByUpdatedAt SortField = "updatedAt"
	SortByTitle     SortField = "title"
	SortByPriority  SortField = "priority"
	SortByStartedAt SortField = "startedAt"
	SortByDuration  SortField = "duration"
)

const DefaultPageSize = 20

// ScenarioQuery describes a filtered, paginated scenario search. Zero values
// mean "no filter". Tag filtering requires the scenario to carry every
// listed tag.
type ScenarioQuery struct {
	ProjectID  string           `json:"projectId,omitempty"`
	Types      []TestType       `json:"types,omitempty"`
	Statuses   []ScenarioStatus `json:"statuses,omitempty"`
	Priorities []Priority       `json:"priorities,omitempty"`
	Tags       []string         `json:"tags,omitempty"`
	// CreatedBy matches as substring.
	CreatedBy   string    `json:"createdBy,omitempty"`
	CreatedFrom time.Time `json:"createdFrom,omitempty"`
	CreatedTo   time.Time `json:"createdTo,omitempty"`
	// Text matches as substring on title and description.
	Text string `json:"text,omitempty"`

	Page     int       `json:"page,omitempty"`
	PageSize int       `json:"pageSize,omitempty"`
	SortBy   SortField `json:"sortBy,omitempty"`
	// Ascending reverses the default newest-first ordering.
	Ascending bool `json:"ascending,omitempty"`
}

// ResultQuery describes a filtered, paginated result search.
type ResultQuery struct {
	ScenarioID  string      `json:"scenarioId,omitempty"`
	Environment Environment `json:"environment,omitempty"`
	Passed      *bool       `json:"passed,omitempty"`
	StartedFrom time.Time   `json:"startedFrom,omitempty"`
	StartedTo   time.Time   `json:"startedTo,omitempty"`

	Page      int       `json:"page,omitempty"`
	PageSize  int       `json:"pageSize,omitempty"`
	SortBy    SortField `json:"sortBy,omitempty"`
	Ascending bool      `json:"ascending,omitempty"`
}

// ScenarioPage is one page of a scenario search.
type ScenarioPage struct {
	Items    []TestScenario `json:"items"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
}

// ResultPage is one page of a result search.
type ResultPage struct {
	Items    []TestResult `json:"items"`
	Total    int          `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"pageSize"`
}

// Normalize clamps pagination values to sane defaults.
func (q ScenarioQuery) Normalize() ScenarioQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.SortBy == "" {
		q.SortBy = SortByCreatedAt
	}

	return q
}

// Normalize clamps pagination values to sane defaults.
func (q ResultQuery) Normalize() ResultQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.SortBy == "" {
		q.SortBy = SortByStartedAt
	}

	return q
}

// Page slices a total item count into the bounds of the requested page.
func PageBounds(page, pageSize, total int) (int, int) {
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}

	end := start + pageSize
	if end > total {
		end = total
	}

	return start, end
}
