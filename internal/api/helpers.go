package api

import (
    "encoding/json"
    "net/http"
    "strconv"
)

type errorResponse struct {
    Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    _ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
    writeJSON(w, status, errorResponse{Error: code})
}

func parseID(raw string) (int64, bool) {
    id, err := strconv.ParseInt(raw, 10, 64)
    if err != nil || id <= 0 {
        return 0, false
    }
    return id, true
}

func parsePage(raw string) int {
    if raw == "" {
        return 1
    }
    n, err := strconv.Atoi(raw)
    if err != nil || n < 1 {
        return 1
    }
    return n
}
