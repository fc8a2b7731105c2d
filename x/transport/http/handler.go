package http

import (
	"net/http"
	"sort"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	apicommon "github.com/compose-network/ingress/server/api"
	"github.com/compose-network/ingress/x/parser"
	"github.com/compose-network/ingress/x/transport"
)

// Handler exposes open connections and the parser registry over HTTP.
type Handler struct {
	server   transport.Server
	registry *parser.Registry
	log      zerolog.Logger
}

func NewHandler(server transport.Server, registry *parser.Registry, log zerolog.Logger) *Handler {
	return &Handler{
		server:   server,
		registry: registry,
		log:      log.With().Str("component", "ingress-http").Logger(),
	}
}

type connectionsResp struct {
	Count       int                        `json:"count"`
	Connections []transport.ConnectionInfo `json:"connections"`
}

type parserResp struct {
	Index int                `json:"index"`
	Label string             `json:"label"`
	Kafka *parser.KafkaStats `json:"kafka,omitempty"`
}

type kafkaStatser interface {
	Stats() parser.KafkaStats
}

func (h *Handler) handleConnections(w http.ResponseWriter, _ *http.Request) {
	conns := h.server.GetConnections()
	sort.Slice(conns, func(i, j int) bool {
		return conns[i].ConnectedAt.Before(conns[j].ConnectedAt)
	})
	apicommon.WriteJSON(w, http.StatusOK, connectionsResp{Count: len(conns), Connections: conns})
}

func (h *Handler) handleConnection(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	conn, ok := h.server.GetConnection(id)
	if !ok {
		apicommon.WriteError(w, r, http.StatusNotFound, "connection_not_found", "no open connection with this id", nil)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, conn.Info())
}

func (h *Handler) handleParsers(w http.ResponseWriter, _ *http.Request) {
	out := make([]parserResp, 0, h.registry.Len())
	for i := 0; i < h.registry.Len(); i++ {
		resp := parserResp{Index: i, Label: h.registry.Label(i)}
		if ks, ok := h.registry.Parser(i).(kafkaStatser); ok {
			stats := ks.Stats()
			resp.Kafka = &stats
		}
		out = append(out, resp)
	}
	apicommon.WriteJSON(w, http.StatusOK, out)
}
