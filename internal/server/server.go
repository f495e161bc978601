package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/cabletrack/internal/audit"
	auditdomain "github.com/smallbiznis/cabletrack/internal/audit/domain"
	"github.com/smallbiznis/cabletrack/internal/auth"
	authdomain "github.com/smallbiznis/cabletrack/internal/auth/domain"
	"github.com/smallbiznis/cabletrack/internal/authorization"
	"github.com/smallbiznis/cabletrack/internal/clock"
	"github.com/smallbiznis/cabletrack/internal/config"
	"github.com/smallbiznis/cabletrack/internal/events"
	"github.com/smallbiznis/cabletrack/internal/ledger"
	ledgerdomain "github.com/smallbiznis/cabletrack/internal/ledger/domain"
	"github.com/smallbiznis/cabletrack/internal/notification"
	notificationdomain "github.com/smallbiznis/cabletrack/internal/notification/domain"
	"github.com/smallbiznis/cabletrack/internal/observability"
	obsmiddleware "github.com/smallbiznis/cabletrack/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/cabletrack/internal/observability/metrics"
	obstracing "github.com/smallbiznis/cabletrack/internal/observability/tracing"
	"github.com/smallbiznis/cabletrack/internal/providers/pdf"
	"github.com/smallbiznis/cabletrack/internal/ratelimit"
	"github.com/smallbiznis/cabletrack/internal/receiving"
	receivingdomain "github.com/smallbiznis/cabletrack/internal/receiving/domain"
	"github.com/smallbiznis/cabletrack/internal/ticket"
	ticketdomain "github.com/smallbiznis/cabletrack/internal/ticket/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	events.Module,
	auth.Module,
	ledger.Module,
	ticket.Module,
	receiving.Module,
	notification.Module,
	ratelimit.Module,
	pdf.Module,
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	useJSONFieldNames()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(CorrelationID())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, s *Server) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	log             *zap.Logger
	clock           clock.Clock
	authsvc         authdomain.Service
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	ticketSvc       ticketdomain.Service
	receivingSvc    receivingdomain.Service
	ledgerSvc       ledgerdomain.Service
	notificationSvc notificationdomain.Service
	pdfProvider     pdf.Provider
	approvalLimiter *ratelimit.ApprovalLimiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	Log             *zap.Logger
	Clock           clock.Clock
	Authsvc         authdomain.Service
	AuthzSvc        authorization.Service
	AuditSvc        auditdomain.Service
	TicketSvc       ticketdomain.Service
	ReceivingSvc    receivingdomain.Service
	LedgerSvc       ledgerdomain.Service
	NotificationSvc notificationdomain.Service
	PDFProvider     pdf.Provider               `optional:"true"`
	ApprovalLimiter *ratelimit.ApprovalLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		log:             p.Log.Named("http.server"),
		clock:           clk,
		authsvc:         p.Authsvc,
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		ticketSvc:       p.TicketSvc,
		receivingSvc:    p.ReceivingSvc,
		ledgerSvc:       p.LedgerSvc,
		notificationSvc: p.NotificationSvc,
		pdfProvider:     p.PDFProvider,
		approvalLimiter: p.ApprovalLimiter,
	}

	svc.registerHealthRoutes()
	svc.registerAuthRoutes()
	svc.registerAPIRoutes()
	svc.registerApprovalLinkRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerHealthRoutes() {
	s.engine.GET("/health", s.Health)
	s.engine.GET("/api/health", s.Health)
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/api/auth")

	auth.POST("/register", s.Register)
	auth.POST("/login", s.Login)
	auth.GET("/me", s.AuthRequired(), s.Me)

	// legacy paths still used by older clients
	s.engine.POST("/api/register", s.Register)
	s.engine.POST("/api/login", s.Login)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	// -------- Users --------
	api.GET("/users", s.RequireCapability(authorization.ObjectUser, authorization.ActionUserList), s.ListUsers)
	api.GET("/users/:id", s.RequireCapability(authorization.ObjectUser, authorization.ActionUserList), s.GetUser)

	// -------- Tickets --------
	api.GET("/tickets", s.RequireCapability(authorization.ObjectTicket, authorization.ActionTicketView), s.ListTickets)
	api.POST("/tickets", s.RequireCapability(authorization.ObjectTicket, authorization.ActionTicketCreate), s.CreateTicket)
	api.GET("/tickets/:id", s.RequireCapability(authorization.ObjectTicket, authorization.ActionTicketView), s.GetTicket)
	api.PATCH("/tickets/:id", s.UpdateTicket)
	api.DELETE("/tickets/:id", s.DeleteTicket)
	api.POST("/tickets/:id/restore", s.RestoreTicket)
	api.DELETE("/tickets/:id/purge", s.PurgeTicket)
	api.GET("/tickets/:id/notifications", s.RequireCapability(authorization.ObjectTicket, authorization.ActionTicketView), s.ListTicketNotifications)
	api.GET("/tickets/:id/picklist", s.RequireCapability(authorization.ObjectTicket, authorization.ActionTicketView), s.TicketPickList)

	// -------- Inventory --------
	api.POST("/cable-receiving", s.CreateCableReceipt)
	api.GET("/cable-receiving", s.RequireCapability(authorization.ObjectCableReceiving, authorization.ActionCableReceivingView), s.ListCableReceipts)
	api.GET("/inventory/movements", s.RequireCapability(authorization.ObjectInventory, authorization.ActionInventoryView), s.ListInventoryMovements)
	api.GET("/inventory/on-hand", s.RequireCapability(authorization.ObjectInventory, authorization.ActionInventoryView), s.InventoryOnHand)
	api.POST("/inventory/adjustments", s.RequireCapability(authorization.ObjectInventory, authorization.ActionInventoryAdjust), s.CreateInventoryAdjustment)

	// -------- Dashboard --------
	api.GET("/dashboard/stats", s.RequireCapability(authorization.ObjectDashboard, authorization.ActionDashboardView), s.DashboardStats)

	// -------- Audit --------
	api.GET("/audit-logs", s.RequireCapability(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}

// registerApprovalLinkRoutes mounts the capability link routes. They carry
// no bearer token; the approval token in the path is the credential.
func (s *Server) registerApprovalLinkRoutes() {
	links := s.engine.Group("/api/tickets/:id")

	approve := s.ApprovalRateLimit("approve")
	reject := s.ApprovalRateLimit("reject")

	links.GET("/approve/:token", approve, s.ApproveTicketViaToken)
	links.POST("/approve/:token", approve, s.ApproveTicketViaToken)
	links.GET("/reject/:token", reject, s.RejectTicketViaToken)
	links.POST("/reject/:token", reject, s.RejectTicketViaToken)
}
