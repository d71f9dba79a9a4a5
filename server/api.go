package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/burntcarrot/pairboard/authority"
	"github.com/burntcarrot/pairboard/checkpoint"
	"github.com/burntcarrot/pairboard/commons"
)

// api serves the admin endpoints next to the websocket hub.
type api struct {
	auth   *authority.Authority
	logger logrus.FieldLogger
}

type stateResponse struct {
	Epoch       int                 `json:"epoch"`
	Checkpoints int                 `json:"checkpoints"`
	Shapes      []commons.Operation `json:"shapes"`
}

type checkpointResponse struct {
	Number int `json:"number"`
	Shapes int `json:"shapes"`
}

func newRouter(a *api, ws http.Handler, gatherer prometheus.Gatherer) *mux.Router {
	r := mux.NewRouter()
	r.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			m := httpsnoop.CaptureMetrics(handler, writer, request)
			a.logger.WithFields(logrus.Fields{
				"method":   request.Method,
				"url":      request.URL.String(),
				"duration": m.Duration,
				"status":   m.Code,
			}).Debug("handled")
		})
	})

	r.Methods(http.MethodGet).Path("/ws").Handler(ws)
	r.Methods(http.MethodGet).Path("/state").HandlerFunc(a.getState)
	r.Methods(http.MethodGet).Path("/checkpoints").HandlerFunc(a.listCheckpoints)
	r.Methods(http.MethodPost).Path("/checkpoints").HandlerFunc(a.saveCheckpoint)
	r.Methods(http.MethodGet).Path("/checkpoints/{n:[0-9]+}").HandlerFunc(a.getCheckpoint)
	r.Methods(http.MethodPost).Path("/checkpoints/{n:[0-9]+}/restore").HandlerFunc(a.restoreCheckpoint)
	r.Methods(http.MethodGet).Path("/checkpoints/{a:[0-9]+}/diff/{b:[0-9]+}").HandlerFunc(a.diffCheckpoints)
	r.Methods(http.MethodGet).Path("/metrics").Handler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

func (a *api) getState(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, stateResponse{
		Epoch:       a.auth.Epoch(),
		Checkpoints: a.auth.GetCheckpointsNumber(),
		Shapes:      commons.ToOperations(a.auth.FetchState()),
	})
}

func (a *api) listCheckpoints(w http.ResponseWriter, r *http.Request) {
	list := a.auth.Checkpoints()
	if list == nil {
		list = []checkpoint.Summary{}
	}
	a.writeJSON(w, http.StatusOK, list)
}

func (a *api) saveCheckpoint(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		http.Error(w, "missing user", http.StatusBadRequest)
		return
	}
	n, err := a.auth.SaveCheckpoint(r.Context(), user)
	if err != nil {
		a.logger.WithError(err).Error("failed to save checkpoint")
		http.Error(w, "failed to save checkpoint", http.StatusInternalServerError)
		return
	}
	cp, _ := a.auth.Checkpoint(n)
	a.writeJSON(w, http.StatusCreated, checkpointResponse{Number: n, Shapes: len(cp.Shapes)})
}

// checkpointNumber parses the path variable name. The route only admits
// digits, so the one failure left is a number too large for an int.
func checkpointNumber(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(mux.Vars(r)[name])
	if err != nil {
		http.Error(w, "invalid checkpoint number", http.StatusBadRequest)
		return 0, false
	}
	return n, true
}

func (a *api) getCheckpoint(w http.ResponseWriter, r *http.Request) {
	n, ok := checkpointNumber(w, r, "n")
	if !ok {
		return
	}
	cp, err := a.auth.Checkpoint(n)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, checkpoint.ToRecord(cp))
}

func (a *api) restoreCheckpoint(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		http.Error(w, "missing user", http.StatusBadRequest)
		return
	}
	n, ok := checkpointNumber(w, r, "n")
	if !ok {
		return
	}
	shapes, err := a.auth.FetchCheckpoint(n, user)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, checkpointResponse{Number: n, Shapes: len(shapes)})
}

func (a *api) diffCheckpoints(w http.ResponseWriter, r *http.Request) {
	from, ok := checkpointNumber(w, r, "a")
	if !ok {
		return
	}
	to, ok := checkpointNumber(w, r, "b")
	if !ok {
		return
	}

	patch, err := a.auth.DiffCheckpoints(from, to)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if patch == nil {
		a.writeJSON(w, http.StatusOK, []any{})
		return
	}
	a.writeJSON(w, http.StatusOK, patch)
}

func (a *api) writeError(w http.ResponseWriter, err error) {
	if authority.IsNotFound(err) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	a.logger.WithError(err).Error("request failed")
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (a *api) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.WithError(err).Warn("failed to write response")
	}
}
