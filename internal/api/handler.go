package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"btl-backend/internal/gateway"
	"btl-backend/internal/models"
	"btl-backend/internal/service"
	"btl-backend/internal/store"
	"btl-backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler contains HTTP handlers
type Handler struct {
	orders      *service.OrderService
	reconciler  *service.Reconciler
	workshop    *service.WorkshopService
	submissions *service.SubmissionService
	admin       *service.AdminService
	logger      *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orders *service.OrderService,
	reconciler *service.Reconciler,
	workshop *service.WorkshopService,
	submissions *service.SubmissionService,
	admin *service.AdminService,
) *Handler {
	return &Handler{
		orders:      orders,
		reconciler:  reconciler,
		workshop:    workshop,
		submissions: submissions,
		admin:       admin,
		logger:      util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/webhooks/payments", h.paymentWebhook)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/schools/order", h.createSchoolOrder)
		v1.POST("/teams/order", h.createTeamOrder)
		v1.POST("/payments/verify", h.verifyPayment)

		workshop := v1.Group("/workshop")
		{
			workshop.POST("/register", h.registerWorkshop)
			workshop.POST("/check-email", h.checkWorkshopEmail)
			workshop.GET("", h.listWorkshopRegistrations)
			workshop.GET("/seats", h.workshopSeats)
			workshop.POST("/:registrationId/paid", h.markWorkshopPaid)
			workshop.DELETE("/:registrationId", h.deleteWorkshopRegistration)
		}

		v1.POST("/submissions", h.createSubmission)

		v1.POST("/admin/counters/resync", h.resyncTeamCounter)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// respondError maps service errors to HTTP responses without leaking
// internals on 5xx.
func (h *Handler) respondError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrValidation) {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
		return
	}
	h.logger.Error("Request failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
}

// createSchoolOrder handles school payment order creation
func (h *Handler) createSchoolOrder(c *gin.Context) {
	var snap models.SchoolSnapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body", "details": err.Error()})
		return
	}

	order, err := h.orders.CreateSchoolOrder(c.Request.Context(), snap)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "order": order})
}

// createTeamOrder handles team batch payment order creation
func (h *Handler) createTeamOrder(c *gin.Context) {
	var req service.TeamOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body", "details": err.Error()})
		return
	}

	order, err := h.orders.CreateTeamOrder(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "order": order})
}

// paymentWebhook handles signed gateway webhook deliveries. The body is read
// raw: the signature covers the exact bytes the gateway sent.
func (h *Handler) paymentWebhook(c *gin.Context) {
	rawBody, err := c.GetRawData()
	if err != nil {
		c.String(http.StatusBadRequest, "unable to read body")
		return
	}
	signature := c.GetHeader(gateway.SignatureHeader)

	msg, err := h.reconciler.HandleWebhook(c.Request.Context(), rawBody, signature)
	if err != nil {
		if errors.Is(err, service.ErrBadSignature) {
			c.String(http.StatusBadRequest, "invalid signature")
			return
		}
		if errors.Is(err, service.ErrBadPayload) {
			c.String(http.StatusBadRequest, "invalid payload")
			return
		}
		// 5xx tells the gateway to redeliver; nothing partial was committed.
		h.logger.Error("Webhook processing failed", zap.Error(err))
		c.String(http.StatusInternalServerError, "internal error")
		return
	}
	c.String(http.StatusOK, msg)
}

// verifyPayment handles client payment-status polling
func (h *Handler) verifyPayment(c *gin.Context) {
	var req service.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body", "details": err.Error()})
		return
	}

	result, err := h.reconciler.VerifyPayment(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrBadSignature) {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid signature"})
			return
		}
		h.respondError(c, err)
		return
	}

	status := http.StatusOK
	if !result.Terminal() {
		status = http.StatusAccepted
	}
	c.JSON(status, result)
}

// registerWorkshop handles workshop signups
func (h *Handler) registerWorkshop(c *gin.Context) {
	var req service.WorkshopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body", "details": err.Error()})
		return
	}

	registrationID, err := h.workshop.Register(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"registration_id": registrationID})
}

// checkWorkshopEmail reports whether an email is still available
func (h *Handler) checkWorkshopEmail(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "email is required"})
		return
	}

	if err := h.workshop.CheckEmail(c.Request.Context(), req.Email); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "email is available"})
}

// listWorkshopRegistrations returns all workshop signups
func (h *Handler) listWorkshopRegistrations(c *gin.Context) {
	regs, err := h.workshop.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, regs)
}

// workshopSeats reports remaining workshop capacity
func (h *Handler) workshopSeats(c *gin.Context) {
	remaining, err := h.workshop.RemainingSeats(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"remaining_seats": remaining})
}

// markWorkshopPaid flips the paid flag on a workshop registration
func (h *Handler) markWorkshopPaid(c *gin.Context) {
	if err := h.workshop.MarkPaid(c.Request.Context(), c.Param("registrationId")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "marked as paid"})
}

// deleteWorkshopRegistration removes a workshop signup
func (h *Handler) deleteWorkshopRegistration(c *gin.Context) {
	if err := h.workshop.Delete(c.Request.Context(), c.Param("registrationId")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "registration deleted"})
}

// createSubmission records one competition submission
func (h *Handler) createSubmission(c *gin.Context) {
	var req service.SubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body", "details": err.Error()})
		return
	}

	sub, err := h.submissions.Submit(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

// resyncTeamCounter administratively realigns a team counter with storage
func (h *Handler) resyncTeamCounter(c *gin.Context) {
	var req struct {
		Event string `json:"event" binding:"required"`
		State string `json:"state" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "event and state are required"})
		return
	}

	seq, err := h.admin.ResyncTeamCounter(c.Request.Context(), req.Event, req.State)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sequence_value": seq})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
