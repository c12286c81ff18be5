package server

import (
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	logx "missionctl/pkg/logx"
)

const pprofPrefix = "/debug/pprof/"

func NewRouter(api *API, pprof bool) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(api.requestLog)
	r.Use(chimw.Recoverer)

	r.Get("/health", api.Health)

	r.Route("/api/cron", func(r chi.Router) {
		r.Get("/status", api.Status)
		r.Get("/describe", api.Describe)
		r.Get("/jobs", api.ListJobs)
		r.Get("/jobs/{id}", api.GetJob)

		r.Group(func(r chi.Router) {
			r.Use(api.throttle)
			r.Post("/jobs", api.CreateJob)
			r.Patch("/jobs/{id}", api.UpdateJob)
			r.Delete("/jobs/{id}", api.DeleteJob)
			r.Post("/reconcile", api.Reconcile)
		})
	})

	if pprof {
		base := strings.TrimSuffix(pprofPrefix, "/")
		r.Get(base, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, pprofPrefix, http.StatusPermanentRedirect)
		})
		r.HandleFunc(base+"/cmdline", hpprof.Cmdline)
		r.HandleFunc(base+"/profile", hpprof.Profile)
		r.HandleFunc(base+"/symbol", hpprof.Symbol)
		r.HandleFunc(base+"/trace", hpprof.Trace)
		r.HandleFunc(pprofPrefix+"*", hpprof.Index)
	}

	return r
}

// requestLog writes one debug line per request.
func (a *API) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()),
			logx.Duration("took", time.Since(start)),
			logx.String("request_id", chimw.GetReqID(r.Context())),
		)
	})
}
