package core

import "net/http"

// ProblemDocument is the RFC 7807 body returned for failed requests.
type ProblemDocument struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Instance  string `json:"instance,omitempty"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Problem describes an error response before normalization.
type Problem struct {
	Type     string
	Title    string
	Status   int
	Detail   string
	Code     string
	Instance string
}

// NormalizeProblem fills canonical defaults.
func NormalizeProblem(problem *Problem) *Problem {
	if problem == nil {
		problem = &Problem{}
	}
	if problem.Status == 0 {
		problem.Status = http.StatusInternalServerError
	}
	if problem.Title == "" {
		problem.Title = http.StatusText(problem.Status)
	}
	if problem.Type == "" {
		problem.Type = "about:blank"
	}
	return problem
}

// Document converts the problem into its wire form.
func (p *Problem) Document() ProblemDocument {
	n := NormalizeProblem(p)
	return ProblemDocument{
		Type:     n.Type,
		Title:    n.Title,
		Status:   n.Status,
		Detail:   n.Detail,
		Instance: n.Instance,
		Code:     n.Code,
	}
}
