package adapthttp

import (
	"net/http"

	"lending/internal/domain"
)

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		f := domain.BookFilter{
			Search:        q.Get("search"),
			Genre:         q.Get("genre"),
			Author:        q.Get("author"),
			AvailableOnly: boolQuery(r, "available"),
		}
		page, err := s.catalog.ListBooks(r.Context(), actorFrom(r.Context()), f, pageQuery(r))
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)

	case http.MethodPost:
		var in domain.BookInput
		if err := parseJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		book, err := s.catalog.CreateBook(r.Context(), actorFrom(r.Context()), in)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, book)

	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	actor := actorFrom(r.Context())

	switch r.Method {
	case http.MethodGet:
		book, err := s.catalog.GetBook(r.Context(), actor, id)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, book)

	case http.MethodPut, http.MethodPatch:
		var patch domain.BookPatch
		if err := parseJSON(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		book, err := s.catalog.UpdateBook(r.Context(), actor, id, patch)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, book)

	case http.MethodDelete:
		if err := s.catalog.DeleteBook(r.Context(), actor, id); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w)
	}
}
