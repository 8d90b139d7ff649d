package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"reportviewer/internal/cache"
	applog "reportviewer/internal/log"
	"reportviewer/internal/middleware/ratelimit"
	"reportviewer/internal/middleware/security"
	"reportviewer/internal/middleware/trace"
	"reportviewer/internal/viewer"
	appweb "reportviewer/web"
)

// Deps are the collaborators the server routes to.
type Deps struct {
	Controller *viewer.Controller
	// LegalAPI serves POST /api/legal-details.
	LegalAPI http.Handler
	// DataDir is served read-only under /data/.
	DataDir string
	// Caches are registered for periodic expiry; optional.
	Caches *cache.Manager
	// TrustedProxies extends the private ranges whose X-Forwarded-For
	// is honoured when resolving client IPs.
	TrustedProxies []string
	Logger         *applog.Logger
}

type Server struct {
	http.Server
	templates  *template.Template
	controller *viewer.Controller
	caches     *cache.Manager
	logger     *applog.Logger
	started    time.Time

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	httpLogger := logger.WithComponent(applog.ComponentHTTP)

	detector := security.NewDetector()
	for _, cidr := range deps.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			httpLogger.Warn("Ignoring invalid trusted proxy", "cidr", cidr, applog.FieldError, err.Error())
		}
	}
	s := &Server{
		controller:       deps.Controller,
		caches:           deps.Caches,
		logger:           httpLogger,
		started:          time.Now(),
		rateLimiter:      ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(httpLogger, detector.ExtractClientIP),
	}

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		httpLogger.Error("Failed parsing templates", applog.FieldError, err.Error())
	}
	s.templates = t

	mux := http.NewServeMux()

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		httpLogger.Warn("Failed to mount embedded static FS", applog.FieldError, err.Error())
	}

	if deps.DataDir != "" {
		data := http.StripPrefix("/data/", http.FileServer(http.Dir(deps.DataDir)))
		mux.Handle("GET /data/", security.NoStoreMiddleware(data))
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("/ui/months", s.handleMonths)
	mux.HandleFunc("/ui/reload", s.handleReload)
	mux.HandleFunc("/ui/select", s.handleSelect)
	mux.HandleFunc("/ui/summary", s.handleSummary)
	mux.HandleFunc("/ui/view", s.handleView)
	mux.HandleFunc("/ui/legal", s.handleLegal)

	if deps.LegalAPI != nil {
		mux.Handle("/api/", applog.ComponentMiddleware(applog.ComponentLegal)(apiHandler(deps.LegalAPI)))
	}

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(detector.ExtractClientIP, httpLogger.Logger)(handler)
	handler = headers.Middleware(handler)
	handler = detector.Middleware(httpLogger.Logger)(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Reloads hold the request open for a full scan.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}
	return s
}

// Shutdown stops background cleanup and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		if s.caches != nil {
			s.caches.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// apiHandler routes the legal endpoint with or without a trailing slash and
// answers CORS preflight for any API path.
func apiHandler(legalAPI http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/legal-details", r.URL.Path == "/api/legal-details/":
			legalAPI.ServeHTTP(w, r)
		case r.Method == http.MethodOptions:
			legalAPI.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

var templateFuncs = template.FuncMap{
	"isView": func(current viewer.View, name string) bool { return string(current) == name },
}
