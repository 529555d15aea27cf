// Package server exposes a read-only HTTP view of records, tables and the
// event log.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/lutwrap/internal/directory"
	"github.com/roach88/lutwrap/internal/engine"
	"github.com/roach88/lutwrap/internal/ir"
	"github.com/roach88/lutwrap/internal/store"
)

// MaxEventLimit caps the limit query parameter of /v1/events.
const MaxEventLimit = 1000

// Handler serves the read-only API.
type Handler struct {
	store                *store.Store
	clock                ir.Clock
	cooldownSlots        uint64
	deactivationCooldown uint64
	gatherer             prometheus.Gatherer
	logger               glog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger. Default: the "lutwrap" logger from glog.
func WithLogger(logger glog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithCooldowns sets the record cooldown used for readiness and the
// directory deactivation cooldown used for table status.
func WithCooldowns(cooldownSlots, deactivationCooldown uint64) Option {
	return func(h *Handler) {
		h.cooldownSlots = cooldownSlots
		h.deactivationCooldown = deactivationCooldown
	}
}

// WithGatherer sets the source of /metrics. Default:
// prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(h *Handler) {
		h.gatherer = g
	}
}

// NewHandler creates a Handler reading from s and clock.
func NewHandler(s *store.Store, clock ir.Clock, opts ...Option) *Handler {
	h := &Handler{
		store:                s,
		clock:                clock,
		cooldownSlots:        engine.DefaultCooldownSlots,
		deactivationCooldown: directory.DefaultDeactivationCooldown,
		gatherer:             prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		_, logger := glog.Resolve("lutwrap", nil, nil)
		h.logger = logger
	}
	h.logger = glog.Ensure(h.logger)
	return h
}

// Router returns a router with every route registered.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers the API on r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", h.Health).Methods("GET")
	r.HandleFunc("/v1/slot", h.GetSlot).Methods("GET")
	r.HandleFunc("/v1/records/{address}", h.GetRecord).Methods("GET")
	r.HandleFunc("/v1/owners/{owner}/records", h.ListOwnerRecords).Methods("GET")
	r.HandleFunc("/v1/tables/{address}", h.GetTable).Methods("GET")
	r.HandleFunc("/v1/events", h.ListEvents).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})).Methods("GET")
}

// RecordView is a record together with its readiness at the current slot.
type RecordView struct {
	ir.Record
	Entries        []ir.Address `json:"entries,omitempty"`
	ReadyAt        ir.Slot      `json:"ready_at"`
	Ready          bool         `json:"ready"`
	SlotsRemaining uint64       `json:"slots_remaining"`
}

// TableView is a decoded table together with its lifecycle status.
type TableView struct {
	Address ir.Address `json:"address"`
	directory.Table
	Status directory.TableStatus `json:"status"`
	Rent   uint64                `json:"rent_lamports"`
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) GetSlot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]uint64{"slot": uint64(h.clock.Now())})
}

func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.pathAddress(w, r, "address")
	if !ok {
		return
	}

	rec, err := h.store.GetRecord(r.Context(), addr)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, engine.CodeRecordNotFound, "record "+addr.String()+" not found")
		return
	}
	if err != nil {
		h.internal(w, r, "get record", err)
		return
	}
	writeJSON(w, http.StatusOK, h.recordView(rec))
}

func (h *Handler) ListOwnerRecords(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.pathAddress(w, r, "owner")
	if !ok {
		return
	}

	recs, err := h.store.ListRecords(r.Context(), owner)
	if err != nil {
		h.internal(w, r, "list records", err)
		return
	}
	views := make([]RecordView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, h.recordView(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": views, "count": len(views)})
}

func (h *Handler) GetTable(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.pathAddress(w, r, "address")
	if !ok {
		return
	}

	data, found, err := h.store.LoadTable(r.Context(), addr)
	if err != nil {
		h.internal(w, r, "load table", err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, string(directory.ErrCodeTableNotFound), "table "+addr.String()+" not found")
		return
	}
	tbl, err := directory.DecodeTable(data)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, string(directory.ErrCodeInvalidTableData), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, TableView{
		Address: addr,
		Table:   tbl,
		Status:  tbl.Status(h.clock.Now(), h.deactivationCooldown),
		Rent:    directory.RentExempt(len(data)),
	})
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f store.EventFilter

	if v := q.Get("record"); v != "" {
		addr, err := ir.ParseAddress(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, engine.CodeInvalidRequest, err.Error())
			return
		}
		f.Record = &addr
	}
	if v := q.Get("after"); v != "" {
		after, err := strconv.ParseInt(v, 10, 64)
		if err != nil || after < 0 {
			writeError(w, http.StatusBadRequest, engine.CodeInvalidRequest, "after must be a non-negative integer")
			return
		}
		f.After = after
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > MaxEventLimit {
			writeError(w, http.StatusBadRequest, engine.CodeInvalidRequest, "limit must be between 1 and "+strconv.Itoa(MaxEventLimit))
			return
		}
		f.Limit = limit
	}

	events, err := h.store.Events(r.Context(), f)
	if err != nil {
		h.internal(w, r, "list events", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

func (h *Handler) recordView(rec ir.Record) RecordView {
	now := h.clock.Now()
	return RecordView{
		Record:         rec,
		Entries:        rec.KnownEntries(),
		ReadyAt:        rec.ReadyAt(h.cooldownSlots),
		Ready:          rec.IsReady(now, h.cooldownSlots),
		SlotsRemaining: rec.SlotsUntilReady(now, h.cooldownSlots),
	}
}

func (h *Handler) pathAddress(w http.ResponseWriter, r *http.Request, name string) (ir.Address, bool) {
	addr, err := ir.ParseAddress(mux.Vars(r)[name])
	if err != nil {
		writeError(w, http.StatusBadRequest, engine.CodeInvalidRequest, err.Error())
		return ir.Address{}, false
	}
	return addr, true
}

func (h *Handler) internal(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.WithContext(r.Context()).Error("request failed", "op", op, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, engine.CodeInternal, op+" failed")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	writeJSON(w, status, body)
}
