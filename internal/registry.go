package internal

import (
	"log/slog"
	"sync"
)

// Registry tracks every open connection of one server instance.
type Registry struct {
	mutex sync.RWMutex
	conns map[string]Conn
	log   *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{conns: make(map[string]Conn), log: log}
}

// Register adds conn to the live set. A second registration of the same id is
// refused so one physical channel never receives a broadcast twice.
func (r *Registry) Register(conn Conn) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, exists := r.conns[conn.ID()]; exists {
		return ErrAlreadyRegistered
	}
	r.conns[conn.ID()] = conn
	r.log.Debug("connection registered", "conn_id", conn.ID(), "active", len(r.conns))
	return nil
}

// Unregister removes conn; removing an absent connection is a no-op.
func (r *Registry) Unregister(conn Conn) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if current, exists := r.conns[conn.ID()]; exists && current == conn {
		delete(r.conns, conn.ID())
		r.log.Debug("connection unregistered", "conn_id", conn.ID(), "active", len(r.conns))
	}
}

func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.conns)
}

// Broadcast sends payload to every connection registered at the time of the
// call and returns how many sends succeeded. A failed send is logged and
// never stops delivery to the others.
func (r *Registry) Broadcast(payload []byte) int {
	delivered := 0
	for _, conn := range r.snapshot() {
		if err := conn.Send(payload); err != nil {
			r.log.Warn("broadcast send failed", "conn_id", conn.ID(), "error", err)
			continue
		}
		delivered++
	}
	return delivered
}

func (r *Registry) snapshot() []Conn {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	targets := make([]Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		targets = append(targets, conn)
	}
	return targets
}

// CloseAll drops every connection, closing those that support it.
func (r *Registry) CloseAll() {
	for _, conn := range r.snapshot() {
		r.Unregister(conn)
		if closer, ok := conn.(interface{ Close() }); ok {
			closer.Close()
		}
	}
}
