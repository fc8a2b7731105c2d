package http

// Route patterns for the ingress introspection surface.
const (
	routeConnections  = "/connections"
	routeConnectionID = "/connections/{id}"
	routeParsers      = "/parsers"
)

// Route names for mux URL building.
const (
	routeNameConnections  = "ingress_connections"
	routeNameConnectionID = "ingress_connection_by_id"
	routeNameParsers      = "ingress_parsers"
)
