package chatenrich

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/chatenrich/internal/kit"
	"github.com/hazyhaar/chatenrich/processor"
	"github.com/hazyhaar/chatenrich/settings"
)

// Handler returns the local control API.
func (a *Agent) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := kit.WithTransport(req.Context(), "http")
			ctx = kit.WithRequestID(ctx, middleware.GetReqID(ctx))
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	a.RegisterHTTP(r)
	return r
}

// RegisterHTTP mounts the control routes on r.
func (a *Agent) RegisterHTTP(r chi.Router) {
	health := a.endpoint("health", a.healthEndpoint)
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		resp, _ := health(req.Context(), nil)
		code := http.StatusOK
		if resp.(healthResp).Error != "" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	})

	st := a.endpoint("settings", a.settingsEndpoint)
	r.Get("/settings", func(w http.ResponseWriter, req *http.Request) {
		a.serve(w, req, st, &settings.Patch{})
	})
	r.Put("/settings", func(w http.ResponseWriter, req *http.Request) {
		var p settings.Patch
		if !decode(w, req, &p) {
			return
		}
		a.serve(w, req, st, &p)
	})

	early := a.endpoint("early", a.earlyEndpoint)
	r.Post("/early", func(w http.ResponseWriter, req *http.Request) {
		var q queryReq
		if !decode(w, req, &q) {
			return
		}
		a.serve(w, req, early, &q)
	})
	enrich := a.endpoint("enrich", a.enrichEndpoint)
	r.Post("/enrich", func(w http.ResponseWriter, req *http.Request) {
		var q queryReq
		if !decode(w, req, &q) {
			return
		}
		a.serve(w, req, enrich, &q)
	})

	r.Get("/sessions", func(w http.ResponseWriter, req *http.Request) {
		out := make([]SessionInfo, 0)
		for _, s := range a.Sessions() {
			out = append(out, s.Info())
		}
		writeJSON(w, http.StatusOK, out)
	})

	panels := a.endpoint("panels", a.panelsEndpoint)
	retry := a.endpoint("retry", a.retryEndpoint)
	dismiss := a.endpoint("dismiss", a.dismissEndpoint)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				ctx := kit.WithSessionID(req.Context(), chi.URLParam(req, "id"))
				next.ServeHTTP(w, req.WithContext(ctx))
			})
		})
		r.Get("/panels", func(w http.ResponseWriter, req *http.Request) {
			resp, err := panels(req.Context(), &panelsReq{Session: chi.URLParam(req, "id")})
			if err != nil {
				writeError(w, errorStatus(err), err)
				return
			}
			writeJSON(w, http.StatusOK, resp.([]sessionPanels)[0].Items)
		})
		r.Post("/panels/{panel}/retry", func(w http.ResponseWriter, req *http.Request) {
			a.serve(w, req, retry, &panelReq{Session: chi.URLParam(req, "id"), Panel: chi.URLParam(req, "panel")})
		})
		r.Post("/panels/{panel}/dismiss", func(w http.ResponseWriter, req *http.Request) {
			a.serve(w, req, dismiss, &panelReq{Session: chi.URLParam(req, "id"), Panel: chi.URLParam(req, "panel")})
		})
		r.Post("/current/retry", func(w http.ResponseWriter, req *http.Request) {
			a.serve(w, req, retry, &panelReq{Session: chi.URLParam(req, "id")})
		})
		r.Post("/current/dismiss", func(w http.ResponseWriter, req *http.Request) {
			a.serve(w, req, dismiss, &panelReq{Session: chi.URLParam(req, "id")})
		})
	})
}

func (a *Agent) serve(w http.ResponseWriter, r *http.Request, ep kit.Endpoint, req any) {
	resp, err := ep(r.Context(), req)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnknownSession),
		errors.Is(err, processor.ErrUnknownPanel),
		errors.Is(err, processor.ErrNoCurrentPanel):
		return http.StatusNotFound
	case errors.Is(err, ErrDisabled):
		return http.StatusConflict
	case errors.Is(err, errEmptyQuery):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
