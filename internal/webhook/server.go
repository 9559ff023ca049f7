// Package webhook serves the HTTP intake endpoints: web form submissions
// and forwarded emails become inbound requests, and request state can be
// read back by id.
package webhook

import (
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/rfqdesk/internal/catalog"
	"github.com/zulandar/rfqdesk/internal/intake"
	"gorm.io/gorm"
)

// DefaultPort is used when StartOpts.Port is unset.
const DefaultPort = 8085

// maxBodyBytes caps request bodies; emails with inline HTML stay well
// below it.
const maxBodyBytes = 2 << 20

// Intake processes one normalized inbound message.
type Intake interface {
	HandleInbound(ctx context.Context, msg intake.Inbound) (*intake.Outcome, error)
}

// StartOpts holds configuration for the webhook server.
type StartOpts struct {
	DB       *gorm.DB
	Intake   Intake
	Catalog  *catalog.Catalog // for field labels; defaults to catalog.Default()
	Port     int
	Token    string // optional bearer token for /v1 routes
	OnQueued func() // called after a reply was queued, e.g. Outbox.Kick
	Out      io.Writer
}

// NewHandler builds the gin engine with all routes registered.
func NewHandler(opts StartOpts) (http.Handler, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("webhook: db is required")
	}
	if opts.Intake == nil {
		return nil, fmt.Errorf("webhook: intake is required")
	}
	if opts.Catalog == nil {
		opts.Catalog = catalog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, &handlers{
		db:       opts.DB,
		intake:   opts.Intake,
		cat:      opts.Catalog,
		onQueued: opts.OnQueued,
	}, opts.Token)
	return router, nil
}

// Start runs the webhook server until ctx is cancelled, then shuts down
// gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	handler, err := NewHandler(opts)
	if err != nil {
		return err
	}
	if opts.Port <= 0 {
		opts.Port = DefaultPort
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Webhook listening on :%d\n", opts.Port)
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}

func registerRoutes(router *gin.Engine, h *handlers, token string) {
	router.GET("/healthz", h.health)

	v1 := router.Group("/v1", limitBody(maxBodyBytes))
	if token != "" {
		v1.Use(requireToken(token))
	}
	v1.POST("/inbound/webform", h.webform)
	v1.POST("/inbound/email", h.email)
	v1.GET("/requests/:id", h.request)
}

func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}

func requireToken(token string) gin.HandlerFunc {
	want := []byte("Bearer " + token)
	return func(c *gin.Context) {
		got := []byte(strings.TrimSpace(c.GetHeader("Authorization")))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
