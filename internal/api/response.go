package api

import (
	"encoding/json"
	"net/http"
)

type envelope struct {
	Data       interface{} `json:"data,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Error      *string     `json:"error,omitempty"`
}

func JSON(w http.ResponseWriter, status int, data interface{}, pg *Pagination) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Data: data, Pagination: pg})
}

func Error(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Error: &msg})
}

// page writes a listing. A full page means there may be a next one.
func page[T any](w http.ResponseWriter, items []*T, req pageRequest) {
	JSON(w, http.StatusOK, items, &Pagination{
		Page:    req.Page,
		PerPage: req.PerPage,
		HasNext: len(items) == req.PerPage,
	})
}
