package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterMux binds gorilla/mux routes.
func (h *Handler) RegisterMux(r *mux.Router) {
	r.HandleFunc(routeConnections, h.handleConnections).Methods(http.MethodGet).Name(routeNameConnections)
	r.HandleFunc(routeConnectionID, h.handleConnection).Methods(http.MethodGet).Name(routeNameConnectionID)
	r.HandleFunc(routeParsers, h.handleParsers).Methods(http.MethodGet).Name(routeNameParsers)
}
