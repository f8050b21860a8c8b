// Package web is the administrative HTTP gateway: JSON views over the
// cache and authority interfaces, plus the prometheus metrics endpoint.
// It holds no state of its own; every request goes straight through the
// admin interfaces.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/quilldns/quill/internal/dns/common/log"
	"github.com/quilldns/quill/internal/dns/metrics"
	"github.com/quilldns/quill/internal/dns/repos/authority"
	"github.com/quilldns/quill/internal/dns/repos/cache"
	"github.com/quilldns/quill/internal/dns/wire"
)

// CacheAdmin is the cache's administrative surface.
type CacheAdmin interface {
	Enumerate() []cache.EntryView
}

// AuthorityAdmin is the zone store's administrative surface.
type AuthorityAdmin interface {
	Zones() []authority.Summary
	Records(apex string) ([]wire.Record, error)
	AddZone(apex, mname, rname string, refresh, retry, expire, minimum uint32) error
	UpsertRecord(apex string, rec wire.Record) error
}

// Server serves the admin API on its own listener.
type Server struct {
	http      *http.Server
	cache     CacheAdmin
	authority AuthorityAdmin
	logger    log.Logger
}

// New builds the admin server bound to addr when started.
func New(addr string, auth AuthorityAdmin, c CacheAdmin, logger log.Logger) *Server {
	s := &Server{cache: c, authority: auth, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /cache", s.handleCacheList)
	mux.HandleFunc("GET /authority", s.handleZoneList)
	mux.HandleFunc("POST /authority", s.handleZoneAdd)
	mux.HandleFunc("GET /authority/{zone}", s.handleRecordList)
	mux.HandleFunc("POST /authority/{zone}", s.handleRecordAdd)
	mux.Handle("GET /metrics", metrics.Handler())

	s.http = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info(map[string]any{"address": s.http.Addr}, "Admin API started")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(map[string]any{"error": err.Error()}, "Admin API failed")
		}
	}()
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type cacheEntryJSON struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Value        string `json:"value"`
	TTLRemaining uint32 `json:"ttl_remaining"`
	Hits         uint64 `json:"hits"`
}

func (s *Server) handleCacheList(w http.ResponseWriter, r *http.Request) {
	entries := s.cache.Enumerate()
	out := make([]cacheEntryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, cacheEntryJSON{
			Name:         e.Name,
			Type:         e.Type.String(),
			Value:        e.Value,
			TTLRemaining: e.TTLRemaining,
			Hits:         e.Hits,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleZoneList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.authority.Zones())
}

type zoneRequest struct {
	Apex    string `json:"apex"`
	MName   string `json:"primary_ns"`
	RName   string `json:"admin"`
	Refresh uint32 `json:"refresh"`
	Retry   uint32 `json:"retry"`
	Expire  uint32 `json:"expire"`
	Minimum uint32 `json:"minimum"`
}

func (s *Server) handleZoneAdd(w http.ResponseWriter, r *http.Request) {
	var req zoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.authority.AddZone(req.Apex, req.MName, req.RName, req.Refresh, req.Retry, req.Expire, req.Minimum); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

type recordJSON struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	TTL   uint32 `json:"ttl"`
	Value string `json:"value"`
}

func (s *Server) handleRecordList(w http.ResponseWriter, r *http.Request) {
	records, err := s.authority.Records(r.PathValue("zone"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	out := make([]recordJSON, 0, len(records))
	for _, rec := range records {
		out = append(out, recordJSON{
			Name:  rec.Name,
			Type:  rec.Type.String(),
			TTL:   rec.TTL,
			Value: rec.Value(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRecordAdd(w http.ResponseWriter, r *http.Request) {
	var req recordJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	rtype := wire.RecordTypeFromString(req.Type)
	if rtype == 0 {
		http.Error(w, "unsupported record type: "+req.Type, http.StatusBadRequest)
		return
	}
	rec, err := wire.ParseRecord(req.Name, rtype, req.TTL, req.Value)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.authority.UpsertRecord(r.PathValue("zone"), rec); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
