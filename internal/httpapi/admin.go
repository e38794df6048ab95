package httpapi

import (
	"net/http"
)

func (s *Server) adminListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.AdminOrders.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) adminSetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	id := r.PathValue("id")
	if err := s.AdminOrders.SetStatus(r.Context(), id, req.Status); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order_id": id, "status": req.Status})
}

func (s *Server) adminDashboard(w http.ResponseWriter, r *http.Request) {
	sum, err := s.Dashboard.Summary(r.Context())
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
