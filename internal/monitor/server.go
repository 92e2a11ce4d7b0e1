// internal/monitor/server.go
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tamzrod/cec-compliance/internal/cec"
	"github.com/tamzrod/cec-compliance/internal/topology"
)

// Server is the read-only HTTP view of the bus.
type Server struct {
	table *topology.Table
	hub   *Hub
	log   zerolog.Logger
}

func NewServer(table *topology.Table, hub *Hub, log zerolog.Logger) *Server {
	return &Server{table: table, hub: hub, log: log}
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/devices", s.handleDevices)
	r.Get("/devices/{la}", s.handleDevice)
	r.Get("/follower", s.handleFollower)
	r.Get("/ws", s.hub.ServeWS)
	return r
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info().Str("addr", addr).Msg("monitor listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if rerr := <-errCh; rerr != nil && !errors.Is(rerr, http.ErrServerClosed) {
			return rerr
		}
		return err
	}
}

// ---- handlers ----

type deviceView struct {
	LogicalAddress uint8     `json:"logical_address"`
	Name           string    `json:"name"`
	Self           bool      `json:"self"`
	PhysAddr       string    `json:"physical_address"`
	Type           string    `json:"device_type"`
	Version        string    `json:"cec_version"`
	VendorID       string    `json:"vendor_id,omitempty"`
	OSDName        string    `json:"osd_name,omitempty"`
	MenuLanguage   string    `json:"menu_language,omitempty"`
	Power          string    `json:"power,omitempty"`
	LastSeen       time.Time `json:"last_seen"`
	Misses         int       `json:"misses"`
	Recognized     []string  `json:"recognized,omitempty"`
	Unrecognized   []string  `json:"unrecognized,omitempty"`
}

func viewOf(r topology.Record) deviceView {
	v := deviceView{
		LogicalAddress: uint8(r.LA),
		Name:           r.LA.String(),
		Self:           r.Self,
		PhysAddr:       r.PhysAddr.String(),
		Type:           r.PrimaryType.String(),
		Version:        r.Version.String(),
		OSDName:        r.OSDName,
		MenuLanguage:   r.MenuLang,
		LastSeen:       r.LastSeen,
		Misses:         r.Misses,
		Recognized:     opNames(r.Recognized),
		Unrecognized:   opNames(r.Unrecognized),
	}
	if r.VendorID <= 0xFFFFFF {
		v.VendorID = "0x" + strconv.FormatUint(uint64(r.VendorID), 16)
	}
	if r.HasPowerStatus {
		v.Power = r.Power.String()
	}
	return v
}

func opNames(s topology.OpcodeSet) []string {
	var out []string
	for _, op := range s.List() {
		out = append(out, op.String())
	}
	return out
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	recs := s.table.Snapshot()
	out := make([]deviceView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, viewOf(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.ParseUint(chi.URLParam(r, "la"), 10, 8)
	if err != nil || !cec.LogicalAddress(n).Valid() {
		writeError(w, http.StatusBadRequest, "logical address must be 0..14")
		return
	}
	rec, ok := s.table.Get(cec.LogicalAddress(n))
	if !ok {
		writeError(w, http.StatusNotFound, "no device at "+cec.LogicalAddress(n).String())
		return
	}
	writeJSON(w, http.StatusOK, viewOf(rec))
}

func (s *Server) handleFollower(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.hub.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "follower not running")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
