package adapthttp

import (
	"net/http"

	"lending/internal/app"
	"lending/internal/domain"
)

// catalogReader is the actor behind public API requests. It holds no account
// and the public routes only ever read the catalog.
var catalogReader = &domain.Actor{Role: domain.RoleMember}

type publicResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// publicAPI guards the read-only catalog with the configured API token, taken
// from a Bearer header or the api_token query parameter. The routes answer
// 404 when no token is configured.
func (s *Server) publicAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.publicToken == "" {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			token = r.URL.Query().Get("api_token")
		}
		switch {
		case token == "":
			writeJSON(w, http.StatusUnauthorized, publicResponse{
				Message: "API token is required",
				Error:   "missing_token",
			})
			return
		case !app.ConstantTimeCompare(token, s.publicToken):
			writeJSON(w, http.StatusUnauthorized, publicResponse{
				Message: "Invalid API token",
				Error:   "invalid_token",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handlePublicBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.BookFilter{
		Search:        q.Get("search"),
		Genre:         q.Get("genre"),
		Author:        q.Get("author"),
		AvailableOnly: boolQuery(r, "available"),
	}
	page, err := s.catalog.ListBooks(r.Context(), catalogReader, f, pageQuery(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, publicResponse{Success: true, Message: "Success", Data: page})
}

func (s *Server) handlePublicBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	book, err := s.catalog.GetBook(r.Context(), catalogReader, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, publicResponse{Success: true, Message: "Success", Data: book})
}
