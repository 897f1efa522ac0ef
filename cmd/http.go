// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/opiproject/opi-evpn-syncd/pkg/evpn"
)

// snapshotter takes a consistent copy of the engine tables
type snapshotter interface {
	SnapshotContext(ctx context.Context, vni uint32) (evpn.Snapshot, error)
}

func newMux(engine snapshotter) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/evpn/vnis", tableHandler(engine, func(s evpn.Snapshot) any { return s.VNIs }))
	mux.Handle("/evpn/macs", tableHandler(engine, func(s evpn.Snapshot) any { return s.MACs }))
	mux.Handle("/evpn/neighs", tableHandler(engine, func(s evpn.Snapshot) any { return s.Neighs }))
	return mux
}

// tableHandler dumps one table as JSON, for every VNI or the one given by
// the vni query parameter
func tableHandler(engine snapshotter, table func(evpn.Snapshot) any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var vni uint64
		if q := r.URL.Query().Get("vni"); q != "" {
			var err error
			if vni, err = strconv.ParseUint(q, 10, 24); err != nil || vni == 0 {
				http.Error(w, fmt.Sprintf("invalid vni %q", q), http.StatusBadRequest)
				return
			}
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		s, err := engine.SnapshotContext(ctx, uint32(vni))
		switch {
		case errors.Is(err, evpn.ErrUnknownVNI):
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		case err != nil:
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(table(s)); err != nil {
			log.WithError(err).Warn("writing table dump")
		}
	}
}

func runHTTPServer(ctx context.Context, httpPort int, engine snapshotter) {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", httpPort),
		Handler:      newMux(engine),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Infof("HTTP Server listening at %v", httpPort)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Panic("cannot start HTTP server")
	}
}
