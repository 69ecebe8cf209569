// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

package broker

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/irifrance/paracube/registry"
)

// HTTPHandler returns a read-only admin surface for the broker: a
// human/monitoring-facing /status dump of the peer registry and a
// Prometheus /metrics endpoint, mirroring the registry's own
// utilization/queue-size gauges. Neither route can mutate broker state.
//
// Grounded on tutu/internal/api/server.go's chi-router construction.
func (b *Broker) HTTPHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Second))

	r.Get("/status", b.handleStatusHTTP)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

type peerStatusView struct {
	PeerID      uint64                            `json:"peer_id"`
	Name        string                            `json:"name"`
	Host        string                            `json:"host"`
	Workers     uint32                            `json:"workers"`
	Daemon      bool                              `json:"daemon"`
	Local       bool                              `json:"local"`
	Utilization float32                           `json:"utilization"`
	Originators map[uint64]registry.SolverInstance `json:"originators"`
}

func (b *Broker) handleStatusHTTP(w http.ResponseWriter, r *http.Request) {
	snapshot := b.registry.Snapshot()
	peers := make([]peerStatusView, 0, len(snapshot))
	for _, p := range snapshot {
		peers = append(peers, peerStatusView{
			PeerID:      p.PeerID,
			Name:        p.Description.Name,
			Host:        p.Description.Host,
			Workers:     p.Description.Workers,
			Daemon:      p.Description.Daemon,
			Local:       p.Description.Local,
			Utilization: p.Utilization,
			Originators: p.Status.SolverInstances,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"local_id": b.cfg.LocalID,
		"peers":    peers,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
