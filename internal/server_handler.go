package internal

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWS upgrades the request and joins the connection to the global
// broadcast domain until it disconnects.
func (s *Server) ServeWS(writer http.ResponseWriter, request *http.Request) {
	websocketConn, err := upgrader.Upgrade(writer, request, nil)
	if err != nil {
		s.log.Warn("upgrade error", "error", err)
		return
	}

	client := newClient(websocketConn, s.opts.SendBuffer, s.log)
	if err := s.registry.Register(client); err != nil {
		s.log.Error("register failed", "conn_id", client.ID(), "error", err)
		_ = websocketConn.Close()
		return
	}
	s.metrics.IncConn()

	go client.writePump()
	go client.readPump(s.ctx, s.relay, s.registry, s.metrics.DecConn)
}
