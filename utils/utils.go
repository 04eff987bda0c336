package utils

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func ParseRequestBody(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	dec := json.NewDecoder(r.Body)
	err := dec.Decode(dest)
	if err != nil {
		slog.Error("error parsing request body", "error", err)
		WriteErrorDetail(w, fmt.Sprintf("error parsing request body: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

// Envelope is the response shape used by every success response.
type Envelope struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type errorDetail struct {
	Detail string `json:"detail"`
}

func writeJson(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	err := json.NewEncoder(w).Encode(data)
	if err != nil {
		slog.Error("error serializing response body", "error", err)
	}
}

func WriteJsonResponse(w http.ResponseWriter, message string, data interface{}) {
	writeJson(w, http.StatusOK, Envelope{Status: "success", Message: message, Data: data})
}

func WriteCreatedResponse(w http.ResponseWriter, message string, data interface{}) {
	writeJson(w, http.StatusCreated, Envelope{Status: "success", Message: message, Data: data})
}

func WriteSuccess(w http.ResponseWriter) {
	writeJson(w, http.StatusOK, Envelope{Status: "success"})
}

func WriteErrorDetail(w http.ResponseWriter, detail string, code int) {
	writeJson(w, code, errorDetail{Detail: detail})
}

func URLParamUUID(r *http.Request, key string) (uuid.UUID, error) {
	param := chi.URLParam(r, key)

	if len(param) == 0 {
		return uuid.Nil, fmt.Errorf("missing {%v} url parameter", key)
	}

	id, err := uuid.Parse(param)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid uuid '%v' provided: %w", param, err)
	}

	return id, nil
}

func QueryParamInt(r *http.Request, key string, defaultValue int) (int, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer '%v' for query param %v: %w", value, key, err)
	}
	return i, nil
}
