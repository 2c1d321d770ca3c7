package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/esvd-explorer/server/internal/filter"
	"github.com/esvd-explorer/server/internal/service"
	"github.com/esvd-explorer/server/internal/session"
)

// sessionMiddleware loads the session named in the URL. A session belongs to
// the dataset it was created on.
func sessionMiddleware(store *session.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil {
				http.Error(w, "sessions not configured", http.StatusNotImplemented)
				return
			}
			s, err := store.Get(chi.URLParam(r, "session_id"))
			if err != nil || s.Dataset != chi.URLParam(r, "dataset") {
				http.Error(w, session.ErrNotFound.Error(), http.StatusNotFound)
				return
			}
			ctx := context.WithValue(r.Context(), sessionKey, s)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func getSession(r *http.Request) *session.Session {
	if s, ok := r.Context().Value(sessionKey).(*session.Session); ok {
		return s
	}
	return nil
}

type sessionResponse struct {
	ID      string `json:"id"`
	Dataset string `json:"dataset"`
	service.Snapshot
}

// errBadSelection marks a selection change that could not be applied.
var errBadSelection = errors.New("invalid selection")

// resolveSession applies change (if any) to the held selections, runs the
// cascade and stores the repaired selections, all in one session cycle. On a
// fatal condition the levels resolved before it are still stored.
func resolveSession(svc *service.Explorer, s *session.Session, change func(*session.State) error) (service.Snapshot, error) {
	var (
		snap service.Snapshot
		err  error
	)
	s.Update(func(held session.State) session.State {
		if change != nil {
			next := held
			if cerr := change(&next); cerr != nil {
				err = fmt.Errorf("%w: %w", errBadSelection, cerr)
				return held
			}
			held = next
		}

		snap, err = svc.Resolve(held.Chain, held.Service)
		if err != nil {
			var perr *service.PipelineError
			if !errors.As(err, &perr) {
				return held
			}
			chain := held.Chain
			res := perr.Resolution
			if res.Biome != nil {
				chain.Biome = res.Chain.Biome
			}
			if res.Ecozone != nil {
				chain.Ecozone = res.Chain.Ecozone
			}
			return session.State{Chain: chain, Service: held.Service}
		}
		chain, serviceSel := snap.State()
		return session.State{Chain: chain, Service: serviceSel}
	})
	return snap, err
}

func sessionCreateHandler(store *session.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "sessions not configured", http.StatusNotImplemented)
			return
		}
		svc := getDatasetService(r)
		if svc == nil {
			http.Error(w, "dataset service not found", http.StatusInternalServerError)
			return
		}

		s := store.Create(svc.DatasetID())
		snap, err := resolveSession(svc, s, nil)
		if err != nil {
			writePipelineError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, sessionResponse{ID: s.ID, Dataset: s.Dataset, Snapshot: snap})
	}
}

// sessionHandler adapts a handler to the explorer and session found in context.
func sessionHandler(h func(http.ResponseWriter, *http.Request, *service.Explorer, *session.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc := getDatasetService(r)
		s := getSession(r)
		if svc == nil || s == nil {
			http.Error(w, "session context missing", http.StatusInternalServerError)
			return
		}
		h(w, r, svc, s)
	}
}

var sessionStateHandler = sessionHandler(func(w http.ResponseWriter, r *http.Request, svc *service.Explorer, s *session.Session) {
	snap, err := resolveSession(svc, s, nil)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{ID: s.ID, Dataset: s.Dataset, Snapshot: snap})
})

type selectionRequest struct {
	Level     string           `json:"level"`
	Selection filter.Selection `json:"selection"`
}

var sessionSelectionHandler = sessionHandler(func(w http.ResponseWriter, r *http.Request, svc *service.Explorer, s *session.Session) {
	var req selectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	level, err := filter.ParseLevel(req.Level)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	snap, err := resolveSession(svc, s, func(st *session.State) error {
		return st.Set(level, req.Selection)
	})
	if errors.Is(err, errBadSelection) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{ID: s.ID, Dataset: s.Dataset, Snapshot: snap})
})

var sessionSummaryHandler = sessionHandler(func(w http.ResponseWriter, r *http.Request, svc *service.Explorer, s *session.Session) {
	snap, err := resolveSession(svc, s, nil)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	data, err := svc.SummaryJSON(snap.Chain)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	writeRawJSON(w, data)
})

var sessionPointsHandler = sessionHandler(func(w http.ResponseWriter, r *http.Request, svc *service.Explorer, s *session.Session) {
	snap, err := resolveSession(svc, s, nil)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	chain, serviceSel := snap.State()
	data, err := svc.MapJSON(chain, serviceSel)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	writeRawJSON(w, data)
})

var sessionExportCSVHandler = sessionHandler(func(w http.ResponseWriter, r *http.Request, svc *service.Explorer, s *session.Session) {
	snap, err := resolveSession(svc, s, nil)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	name, data, err := svc.ExportCSV(snap.Chain)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	writeAttachment(w, "text/csv; charset=utf-8", name, data)
})

func sessionDeleteHandler(store *session.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store.Delete(chi.URLParam(r, "session_id"))
		w.WriteHeader(http.StatusNoContent)
	}
}
