// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"txcalc/internal/core/entity"
	"txcalc/internal/domain"
)

// --- Pagination ---

// PaginationRequest contains pagination parameters.
type PaginationRequest struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// Defaults sets default pagination values.
func (p *PaginationRequest) Defaults() {
	if p.Limit == 0 {
		p.Limit = 50
	}
}

// --- List Response ---

// ListResponse wraps list results with pagination.
type ListResponse struct {
	Items      any   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// FromListResult converts a repository page into a list response.
func FromListResult[T any](r domain.ListResult[T]) ListResponse {
	items := r.Items
	if items == nil {
		items = []T{}
	}
	return ListResponse{
		Items:      items,
		TotalCount: r.TotalCount,
		Limit:      r.Limit,
		Offset:     r.Offset,
	}
}

// --- Document list ---

// DocumentListRequest holds the query of GET /documents.
type DocumentListRequest struct {
	PaginationRequest
	DocType   string `form:"doctype"`
	Company   string `form:"company"`
	DocStatus *int   `form:"docstatus" binding:"omitempty,min=0,max=2"`
	Search    string `form:"search"`
	OrderBy   string `form:"orderBy"`
}

// ToFilter converts the query into a repository filter.
func (r DocumentListRequest) ToFilter() domain.ListFilter {
	f := domain.DefaultListFilter()
	f.DocType = r.DocType
	f.Company = r.Company
	f.Search = r.Search
	if r.OrderBy != "" {
		f.OrderBy = r.OrderBy
	}
	if r.DocStatus != nil {
		s := entity.DocStatus(*r.DocStatus)
		f.DocStatus = &s
	}
	if r.Limit > 0 {
		f.Limit = r.Limit
	}
	f.Offset = r.Offset
	return f
}

// --- Success Response ---

// SuccessResponse for operations without data.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// --- Error Response ---

// ErrorResponse for error details.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
