package actor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/roach88/interflow/internal/model"
)

// Handler serves the actor surface:
//
//	GET    /actors/{address}                          load-or-404
//	POST   /actors/{address}?id=<id>&message_id=<id>  hydrate from the relational store
//	POST   /actors/{address}/refresh?id=<id>          re-read after a relational write
//	POST   /actors/{address}/invocations              record a resolved callback
//	DELETE /actors/{address}                          evict from memory
//
// None of it is authenticated. Serve it on an internal listener only.
type Handler struct {
	reg *Registry
}

// NewHandler wraps a registry.
func NewHandler(reg *Registry) *Handler {
	return &Handler{reg: reg}
}

// Register mounts the routes on r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/actors/{address}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/actors/{address}", h.hydrate).Methods(http.MethodPost)
	r.HandleFunc("/actors/{address}", h.evict).Methods(http.MethodDelete)
	r.HandleFunc("/actors/{address}/refresh", h.refresh).Methods(http.MethodPost)
	r.HandleFunc("/actors/{address}/invocations", h.invocation).Methods(http.MethodPost)
}

type errorBody struct {
	Error string `json:"error"`
}

type invocationBody struct {
	UserID string `json:"userId"`
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	st, err := h.reg.Get(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeState(w, st)
}

func (h *Handler) hydrate(w http.ResponseWriter, r *http.Request) {
	h.load(w, r, h.reg.Hydrate)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	h.load(w, r, h.reg.Refresh)
}

type loadFunc func(ctx context.Context, address string, componentID uint64, messageID string) (*model.ComponentState, error)

func (h *Handler) load(w http.ResponseWriter, r *http.Request, fn loadFunc) {
	q := r.URL.Query()
	id, err := strconv.ParseUint(q.Get("id"), 10, 64)
	if err != nil || id == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "id must be a component id"})
		return
	}

	st, err := fn(r.Context(), mux.Vars(r)["address"], id, q.Get("message_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeState(w, st)
}

func (h *Handler) invocation(w http.ResponseWriter, r *http.Request) {
	var body invocationBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid body"})
		return
	}
	if err := h.reg.RecordInvocation(r.Context(), mux.Vars(r)["address"], body.UserID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) evict(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if !ValidAddress(address) {
		writeError(w, ErrInvalidAddress)
		return
	}
	if err := h.reg.Evict(r.Context(), address); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeState(w http.ResponseWriter, st *model.ComponentState) {
	if rev, err := st.Revision(); err == nil {
		w.Header().Set("ETag", `"`+rev+`"`)
	}
	writeJSON(w, http.StatusOK, st)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrComponentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidAddress):
		return http.StatusBadRequest
	case errors.Is(err, ErrAddressConflict):
		return http.StatusConflict
	case errors.Is(err, ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("actor request failed", "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write actor response", "error", err)
	}
}
