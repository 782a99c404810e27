package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 1 << 20

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return maxErr
		}
		return &ErrValidation{Message: fmt.Sprintf("invalid request body: %v", err)}
	}
	return nil
}

// requireQuery returns a non-empty query parameter or an *ErrValidation.
func requireQuery(r *http.Request, name string) (string, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return "", &ErrValidation{Field: name, Message: "is required"}
	}
	return v, nil
}

// handleTokenStatistics returns the token tracker snapshot.
func (s *Server) handleTokenStatistics(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.processor.Tracker().Stats())
}
