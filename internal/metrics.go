package internal

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

type Metrics struct {
	relayed         atomic.Uint64
	persistFailures atomic.Uint64
	uploads         atomic.Uint64
	uploadsRejected atomic.Uint64
	uploadFailures  atomic.Uint64
	activeConns     atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncRelayed() {
	m.relayed.Add(1)
}

func (m *Metrics) IncPersistFailure() {
	m.persistFailures.Add(1)
}

func (m *Metrics) IncUpload() {
	m.uploads.Add(1)
}

func (m *Metrics) IncUploadRejected() {
	m.uploadsRejected.Add(1)
}

func (m *Metrics) IncUploadFailure() {
	m.uploadFailures.Add(1)
}

func (m *Metrics) IncConn() {
	m.activeConns.Add(1)
}

func (m *Metrics) DecConn() {
	m.activeConns.Add(-1)
}

func (m *Metrics) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{
		"messages_relayed_total": m.relayed.Load(),
		"persist_failures_total": m.persistFailures.Load(),
		"uploads_total":          m.uploads.Load(),
		"uploads_rejected_total": m.uploadsRejected.Load(),
		"upload_failures_total":  m.uploadFailures.Load(),
		"active_connections":     m.activeConns.Load(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
