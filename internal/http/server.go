// Package http serves the ledger as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"billbook/internal/cache"
	"billbook/internal/core"
	"billbook/internal/currency"
	"billbook/internal/invoicing"
	"billbook/internal/log"
	"billbook/internal/middleware/ratelimit"
	"billbook/internal/middleware/security"
	"billbook/internal/middleware/trace"
	"billbook/internal/receipts"
)

// Ledger is the part of the store the API reads and mutates.
type Ledger interface {
	Clients() []core.Client
	Client(id string) (core.Client, error)
	AddClient(ctx context.Context, c core.Client) (core.Client, error)

	Projects() []core.Project
	Project(id string) (core.Project, error)
	ProjectIndex() map[string]core.Project
	AddProject(ctx context.Context, p core.Project) (core.Project, error)

	TimeEntries() []core.TimeEntry
	TimeEntry(id string) (core.TimeEntry, error)
	LogTime(ctx context.Context, te core.TimeEntry) (core.TimeEntry, error)
	UpdateTimeEntry(ctx context.Context, id string, te core.TimeEntry) (core.TimeEntry, error)
	DeleteTimeEntry(ctx context.Context, id string) error

	Expenses() []core.Expense
	Expense(id string) (core.Expense, error)
	AddExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	SetExpenseStatus(ctx context.Context, id string, status core.ExpenseStatus) (core.Expense, error)
	AttachReceipt(ctx context.Context, id string, r core.Receipt) (core.Expense, error)

	Invoices() []core.Invoice
	Invoice(id string) (core.Invoice, error)
	InvoiceDocument(id string) (invoicing.Document, error)
	CreateInvoice(ctx context.Context, d invoicing.Draft) (core.Invoice, error)
	CreateManualInvoice(ctx context.Context, d invoicing.Draft) (core.Invoice, error)
	RecordPayment(ctx context.Context, id string, p core.Payment) (core.Invoice, error)
	CancelInvoice(ctx context.Context, id string) (core.Invoice, error)

	Rates() []core.ExchangeRate
	RateTable() currency.RateTable
	SetRates(ctx context.Context, rates []core.ExchangeRate) ([]core.ExchangeRate, error)

	RecurringExpenses() []core.RecurringExpense
	AddRecurringExpense(ctx context.Context, re core.RecurringExpense) (core.RecurringExpense, error)

	Revision() uint64
	Today() core.Date
}

// Pinger reports whether the persistence backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

const (
	reportCacheSize   = 200
	reportCacheTTL    = 5 * time.Minute
	cacheCleanupEvery = 10 * time.Minute
	maxJSONBody       = 1 << 20
)

type Server struct {
	http.Server
	ledger    Ledger
	extractor receipts.Extractor
	pinger    Pinger
	logger    *log.Logger
	access    *log.StructuredLogger

	reports  *cache.LRUCache[[]byte]
	caches   *cache.Manager
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	rateLimit    int
	shutdownOnce sync.Once
}

type Option func(*Server)

// WithExtractor enables receipt field extraction on upload.
func WithExtractor(e receipts.Extractor) Option {
	return func(s *Server) { s.extractor = e }
}

func WithPinger(p Pinger) Option {
	return func(s *Server) { s.pinger = p }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithRateLimit caps mutating requests per client and minute.
func WithRateLimit(perMinute int) Option {
	return func(s *Server) { s.rateLimit = perMinute }
}

// NewServer configures routes and middleware and starts the report cache
// cleanup. Call Shutdown to stop it.
func NewServer(addr string, ledger Ledger, opts ...Option) *Server {
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       time.Minute,
		},
		ledger:    ledger,
		logger:    log.Discard(),
		reports:   cache.NewLRUCache[[]byte](reportCacheSize, reportCacheTTL),
		rateLimit: ratelimit.DefaultConfig().RequestsPerMinute,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.access = log.NewStructuredLogger(s.logger)
	s.detector = security.NewDetector(s.logger)
	s.tracer = trace.NewMiddleware(s.logger, s.detector.ExtractClientIP)
	s.limiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: s.rateLimit}, s.logger)
	s.caches = cache.NewManager(s.logger)
	s.caches.Register(s.reports)
	s.caches.StartCleanup(context.Background(), cacheCleanupEvery)

	s.Handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.tracer.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(s.detector.Middleware)
	r.Use(security.Headers(security.DefaultHeadersConfig()))

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.limiter.Middleware(s.detector.ExtractClientIP))

		r.Post("/time/reconcile", s.handleReconcile)

		r.Get("/clients", s.handleListClients)
		r.Post("/clients", s.handleCreateClient)
		r.Get("/projects", s.handleListProjects)
		r.Post("/projects", s.handleCreateProject)

		r.Get("/time-entries", s.handleListTimeEntries)
		r.Post("/time-entries", s.handleLogTime)
		r.Get("/time-entries/{id}", s.handleGetTimeEntry)
		r.Put("/time-entries/{id}", s.handleUpdateTimeEntry)
		r.Delete("/time-entries/{id}", s.handleDeleteTimeEntry)

		r.Get("/expenses", s.handleListExpenses)
		r.Post("/expenses", s.handleCreateExpense)
		r.Get("/expenses/{id}", s.handleGetExpense)
		r.Put("/expenses/{id}/status", s.handleSetExpenseStatus)
		r.Post("/expenses/{id}/receipts", s.handleUploadReceipt)

		r.Get("/recurring-expenses", s.handleListRecurring)
		r.Post("/recurring-expenses", s.handleCreateRecurring)

		r.Get("/invoices", s.handleListInvoices)
		r.Post("/invoices", s.handleCreateInvoice)
		r.Get("/invoices/{id}", s.handleGetInvoice)
		r.Post("/invoices/{id}/payments", s.handleRecordPayment)
		r.Post("/invoices/{id}/cancel", s.handleCancelInvoice)
		r.Get("/invoices/{id}/document", s.handleInvoiceDocument)

		r.Get("/rates", s.handleListRates)
		r.Put("/rates", s.handleSetRates)
		r.Post("/convert", s.handleConvert)

		r.Get("/reports/expenses", s.handleExpenseReport)
		r.Get("/reports/time", s.handleTimeReport)
		r.Get("/reports/revenue", s.handleRevenueReport)

		r.Get("/export/{file}", s.handleExport)
	})
	return r
}

// Shutdown stops background cleanup and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
