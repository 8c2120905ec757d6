package adapthttp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"lending/internal/domain"
)

func (s *Server) handleLoans(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		f := domain.LoanFilter{
			UserID:   int64Query(r, "user_id"),
			BookID:   int64Query(r, "book_id"),
			Overdue:  boolQuery(r, "overdue"),
			DueToday: boolQuery(r, "due_today"),
		}
		if v := r.URL.Query().Get("status"); v != "" {
			status, err := domain.ParseLoanStatus(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			f.Status = status
		}
		page, err := s.lending.ListLoans(r.Context(), actorFrom(r.Context()), f, pageQuery(r))
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)

	case http.MethodPost:
		var body struct {
			BookID int64 `json:"book_id"`
		}
		if err := parseJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		loan, err := s.lending.BorrowBook(r.Context(), actorFrom(r.Context()), body.BookID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, loan)

	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleLoan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	actor := actorFrom(r.Context())

	switch r.Method {
	case http.MethodGet:
		loan, err := s.lending.GetLoan(r.Context(), actor, id)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, loan)

	case http.MethodPut, http.MethodPatch:
		patch, err := parseLoanPatch(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		loan, err := s.lending.UpdateLoan(r.Context(), actor, id, patch)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, loan)

	case http.MethodDelete:
		if err := s.lending.DeleteLoan(r.Context(), actor, id); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleLoanReturn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	loan, err := s.lending.ReturnLoan(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

// parseLoanPatch reads a loan update body. Unknown keys are kept so the
// service can reject them by name.
func parseLoanPatch(r *http.Request) (domain.LoanPatch, error) {
	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return domain.LoanPatch{}, fmt.Errorf("invalid json: %w", err)
	}

	var patch domain.LoanPatch
	for key, raw := range body {
		if key != "status" {
			patch.Other = append(patch.Other, key)
			continue
		}
		if err := json.Unmarshal(raw, &patch.Status); err != nil {
			return domain.LoanPatch{}, fmt.Errorf("invalid status: %w", err)
		}
	}
	sort.Strings(patch.Other)
	return patch, nil
}
