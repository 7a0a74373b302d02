package api

import (
	"encoding/json"
	"net/http"
)

type Response struct {
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

type PaginatedResponse struct {
	Data     any `json:"data"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// WriteJSON writes v as the whole body, without an envelope.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func JSON(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, Response{Data: data})
}

func JSONPaginated(w http.ResponseWriter, status int, data any, page, pageSize int) {
	WriteJSON(w, status, PaginatedResponse{
		Data:     data,
		Page:     page,
		PageSize: pageSize,
	})
}
