package httpapi

import (
	"fmt"
	"net/http"
)

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.Catalog.List(r.Context())
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, ok, err := s.Catalog.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	if !ok {
		s.writeError(w, r, fmt.Errorf("%w: %s", errProductNotFound, id), nil)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
