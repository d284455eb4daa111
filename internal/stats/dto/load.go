package dto

import statsdomain "inboxstats-backend/internal/stats/domain"

// LoadResponse is returned by the backfill endpoint.
type LoadResponse struct {
	Pages int `json:"pages"`
}

type LoadRunsResponse struct {
	Runs []*statsdomain.LoadRun `json:"runs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
