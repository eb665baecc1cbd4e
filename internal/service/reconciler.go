package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"btl-backend/internal/gateway"
	"btl-backend/internal/models"
	"btl-backend/internal/notify"
	"btl-backend/internal/regid"
	"btl-backend/internal/store"
	"btl-backend/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Verify poll statuses returned to clients.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusRegistered = "registered"
	StatusFailed     = "failed"
)

const (
	orderLockTTL   = 2 * time.Minute
	verifyCacheTTL = 30 * time.Minute
)

// Reconciler mediates between the synchronous verify poll and the
// asynchronous gateway webhook. The webhook is the only writer of terminal
// payment state; verify is read-only. Registration rows and the intent's
// paid+verified transition commit as one transaction, so the two can never
// disagree.
type Reconciler struct {
	store         DataStore
	cache         Cache
	publisher     Publisher
	renderer      notify.PDFRenderer
	webhookSecret string
	keySecret     string
	teamsCap      int
	logger        *zap.Logger
}

// NewReconciler creates the payment reconciliation service.
func NewReconciler(store DataStore, cache Cache, publisher Publisher, renderer notify.PDFRenderer, webhookSecret, keySecret string, teamsCap int) *Reconciler {
	return &Reconciler{
		store:         store,
		cache:         cache,
		publisher:     publisher,
		renderer:      renderer,
		webhookSecret: webhookSecret,
		keySecret:     keySecret,
		teamsCap:      teamsCap,
		logger:        util.GetLogger(),
	}
}

// HandleWebhook processes a raw gateway webhook delivery. The signature over
// the raw body is checked before the payload is parsed. Returns a message for
// a 200 response; ErrBadSignature/ErrBadPayload map to 400; any other error
// maps to 500, which makes the gateway redeliver against unchanged state.
func (r *Reconciler) HandleWebhook(ctx context.Context, rawBody []byte, signature string) (string, error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.HandleWebhook")
	defer span.End()

	start := time.Now()
	defer func() {
		util.WebhookProcessingLatency.Observe(time.Since(start).Seconds())
	}()

	if !gateway.VerifyWebhookSignature(r.webhookSecret, rawBody, signature) {
		util.WebhookEventsTotal.WithLabelValues("unknown", "bad_signature").Inc()
		r.logger.Warn("Webhook signature mismatch")
		return "", ErrBadSignature
	}

	var event gateway.WebhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		util.WebhookEventsTotal.WithLabelValues("unknown", "bad_payload").Inc()
		return "", fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	entity := event.Payload.Payment.Entity

	switch event.Event {
	case gateway.EventPaymentCaptured:
		msg, err := r.handleCaptured(ctx, entity)
		r.countWebhook(event.Event, err)
		return msg, err

	case gateway.EventPaymentFailed:
		msg, err := r.handleFailed(ctx, entity)
		r.countWebhook(event.Event, err)
		return msg, err

	default:
		util.WebhookEventsTotal.WithLabelValues(event.Event, "ignored").Inc()
		return fmt.Sprintf("ignoring event %s", event.Event), nil
	}
}

func (r *Reconciler) countWebhook(event string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	util.WebhookEventsTotal.WithLabelValues(event, outcome).Inc()
}

type registrationResult struct {
	school *models.School
	teams  []models.Team
	regIDs []string
}

func (r *Reconciler) handleCaptured(ctx context.Context, entity gateway.PaymentEntity) (string, error) {
	orderID := entity.OrderID

	if r.cache != nil {
		acquired, err := r.cache.AcquireOrderLock(ctx, orderID, orderLockTTL)
		if err != nil {
			// tx atomicity still protects us; don't let redis block the webhook
			r.logger.Warn("Order lock unavailable, proceeding", zap.Error(err))
		} else if !acquired {
			return "", fmt.Errorf("order %s is already being processed", orderID)
		} else {
			defer func() {
				if err := r.cache.ReleaseOrderLock(context.Background(), orderID); err != nil {
					r.logger.Warn("Failed to release order lock", zap.Error(err))
				}
			}()
		}
	}

	intent, err := r.store.GetIntentByOrderID(ctx, orderID)
	if err != nil {
		return "", fmt.Errorf("failed to load payment intent: %w", err)
	}
	if intent == nil {
		r.logger.Warn("No payment intent for captured payment", zap.String("order_id", orderID))
		return "no matching payment intent", nil
	}

	// Terminal states are terminal: a redelivered webhook short-circuits.
	switch intent.Status {
	case models.PaymentStatusPaid:
		r.logger.Info("Duplicate captured webhook", zap.String("order_id", orderID))
		return "payment already processed", nil
	case models.PaymentStatusFailed:
		r.logger.Warn("Captured webhook for failed intent", zap.String("order_id", orderID))
		return "payment intent already failed", nil
	}

	var result *registrationResult
	switch intent.Kind {
	case models.IntentKindSchool:
		result, err = r.registerSchool(ctx, intent, entity)
	case models.IntentKindTeam:
		result, err = r.registerTeams(ctx, intent, entity)
	default:
		err = invalidf("unknown intent kind %q", intent.Kind)
	}

	if err != nil {
		if errors.Is(err, ErrValidation) || errors.Is(err, regid.ErrSequenceExhausted) {
			// Permanent failure: nothing committed, and redelivery cannot
			// help. Record the terminal state and acknowledge.
			if markErr := r.store.MarkIntentFailed(ctx, orderID, err.Error()); markErr != nil {
				return "", fmt.Errorf("failed to record registration failure: %w", markErr)
			}
			r.publishPaymentFailed(ctx, intent.Kind, orderID, entity.ID, err.Error())
			util.RegistrationsFailedTotal.WithLabelValues(intent.Kind, "validation").Inc()
			r.logger.Warn("Registration rejected",
				zap.String("order_id", orderID), zap.Error(err))
			return fmt.Sprintf("registration failed: %v", err), nil
		}
		// Transient failure: the transaction rolled back, the intent stays
		// created, and the gateway retries against a clean slate.
		util.RegistrationsFailedTotal.WithLabelValues(intent.Kind, "storage").Inc()
		return "", err
	}

	r.attachPDF(ctx, intent.Kind, orderID, result)
	r.publishRegistrationCompleted(ctx, intent, result)
	util.RegistrationsTotal.WithLabelValues(intent.Kind).Inc()

	r.logger.Info("Registration completed",
		zap.String("order_id", orderID),
		zap.String("kind", intent.Kind),
		zap.Strings("registration_ids", result.regIDs))
	return "registration completed", nil
}

// registerSchool runs the school registration side effect for a captured
// payment. A school already registered under the snapshot email is reused
// rather than treated as a failure.
func (r *Reconciler) registerSchool(ctx context.Context, intent *models.PaymentIntent, entity gateway.PaymentEntity) (*registrationResult, error) {
	snap := intent.Snapshot.School
	if snap == nil {
		return nil, invalidf("school intent %s has no snapshot", intent.OrderID)
	}

	existing, err := r.store.GetSchoolByEmail(ctx, snap.SchoolEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to check school email: %w", err)
	}
	if existing != nil {
		if err := r.store.FinalizeSchoolRegistration(ctx, intent.OrderID, entity.ID, nil, existing.SchoolRegID); err != nil {
			return nil, err
		}
		return &registrationResult{school: existing, regIDs: []string{existing.SchoolRegID}}, nil
	}

	stateCode, err := regid.StateCode(snap.State)
	if err != nil {
		return nil, invalidf("%v", err)
	}
	districtCode, err := regid.DistrictCode(snap.State, snap.District)
	if err != nil {
		return nil, invalidf("%v", err)
	}

	seq, err := r.store.AllocateNext(ctx, models.CounterKindSchool, stateCode+districtCode)
	if err != nil {
		return nil, err
	}
	schoolRegID, err := regid.FormatSchoolID(stateCode, districtCode, seq)
	if err != nil {
		return nil, err
	}

	school := &models.School{
		SchoolRegID:       schoolRegID,
		SchoolName:        snap.SchoolName,
		PrincipalName:     snap.PrincipalName,
		SchoolContact:     snap.SchoolContact,
		SchoolEmail:       snap.SchoolEmail,
		CoordinatorName:   snap.CoordinatorName,
		CoordinatorNumber: snap.CoordinatorNumber,
		CoordinatorEmail:  snap.CoordinatorEmail,
		SchoolAddress:     snap.SchoolAddress,
		SchoolWebsite:     snap.SchoolWebsite,
		State:             snap.State,
		District:          snap.District,
	}
	if err := r.store.FinalizeSchoolRegistration(ctx, intent.OrderID, entity.ID, school, schoolRegID); err != nil {
		return nil, err
	}
	return &registrationResult{school: school, regIDs: []string{schoolRegID}}, nil
}

// registerTeams runs the batch registration side effect for a captured team
// payment. Sequence numbers come from one atomic AllocateNext per team, in
// batch order, so concurrent batches for the same (event, state) interleave
// without collisions or local resync.
func (r *Reconciler) registerTeams(ctx context.Context, intent *models.PaymentIntent, entity gateway.PaymentEntity) (*registrationResult, error) {
	snap := intent.Snapshot
	if len(snap.Teams) == 0 {
		return nil, invalidf("team intent %s has no snapshot", intent.OrderID)
	}

	school, err := r.store.GetSchoolByRegID(ctx, snap.SchoolRegID)
	if err != nil {
		// Only a confirmed missing school is a permanent failure; a storage
		// error must propagate so the gateway redelivers.
		if errors.Is(err, store.ErrNotFound) {
			return nil, invalidf("school %s not found", snap.SchoolRegID)
		}
		return nil, fmt.Errorf("failed to load school %s: %w", snap.SchoolRegID, err)
	}

	existing, err := r.store.GetTeamsBySchool(ctx, snap.SchoolRegID)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing teams: %w", err)
	}
	if err := validateTeamBatch(existing, snap.Teams, r.teamsCap); err != nil {
		return nil, err
	}

	stateCode, err := regid.StateCode(school.State)
	if err != nil {
		return nil, invalidf("%v", err)
	}

	teams := make([]models.Team, 0, len(snap.Teams))
	regIDs := make([]string, 0, len(snap.Teams))
	for _, ts := range snap.Teams {
		seq, err := r.store.AllocateNext(ctx, models.CounterKindTeam, stateCode+ts.Event)
		if err != nil {
			return nil, err
		}
		teamRegID, err := regid.FormatTeamID(ts.Event, stateCode, seq)
		if err != nil {
			return nil, err
		}
		teams = append(teams, models.Team{
			SchoolRegID: snap.SchoolRegID,
			TeamName:    ts.TeamName,
			TeamNumber:  ts.TeamNumber,
			TeamSize:    ts.TeamSize,
			Members:     ts.Members,
			Event:       ts.Event,
			State:       school.State,
			TeamRegID:   teamRegID,
		})
		regIDs = append(regIDs, teamRegID)
	}

	// The (team_reg_id, event, state) unique constraint is the backstop: a
	// collision aborts the whole transaction, the counter has already moved
	// past the colliding value, and redelivery starts over cleanly.
	if err := r.store.FinalizeTeamRegistration(ctx, intent.OrderID, entity.ID, teams); err != nil {
		return nil, err
	}
	return &registrationResult{school: school, teams: teams, regIDs: regIDs}, nil
}

func (r *Reconciler) handleFailed(ctx context.Context, entity gateway.PaymentEntity) (string, error) {
	reason := entity.ErrorDescription
	if reason == "" {
		reason = "unknown"
	}

	if err := r.store.MarkIntentFailed(ctx, entity.OrderID, reason); err != nil {
		return "", fmt.Errorf("failed to record payment failure: %w", err)
	}

	r.publishPaymentFailed(ctx, "", entity.OrderID, entity.ID, reason)
	r.logger.Warn("Payment failed",
		zap.String("order_id", entity.OrderID),
		zap.String("reason", reason))
	return "payment failure recorded", nil
}

func (r *Reconciler) attachPDF(ctx context.Context, kind, orderID string, result *registrationResult) {
	if r.renderer == nil {
		return
	}

	var pdf []byte
	var name string
	var err error
	switch kind {
	case models.IntentKindSchool:
		pdf, name, err = r.renderer.RenderSchoolConfirmation(ctx, result.school)
	case models.IntentKindTeam:
		pdf, name, err = r.renderer.RenderTeamConfirmation(ctx, result.school, result.teams)
	}
	if err != nil {
		util.PDFRenderFailuresTotal.Inc()
		r.logger.Error("Confirmation document render failed",
			zap.String("order_id", orderID), zap.Error(err))
		return
	}

	encoded := base64.StdEncoding.EncodeToString(pdf)
	if err := r.store.UpdateIntentPDF(ctx, orderID, name, encoded); err != nil {
		r.logger.Error("Failed to attach confirmation document",
			zap.String("order_id", orderID), zap.Error(err))
	}
}

func (r *Reconciler) publishRegistrationCompleted(ctx context.Context, intent *models.PaymentIntent, result *registrationResult) {
	if r.publisher == nil {
		return
	}

	school := result.school
	event := &models.RegistrationCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeRegistrationCompleted,
			Timestamp: time.Now(),
		},
		Kind:            intent.Kind,
		OrderID:         intent.OrderID,
		RegistrationIDs: result.regIDs,
		Recipients: []models.EmailRecipient{
			{Email: school.SchoolEmail, Name: school.SchoolName},
		},
		MergeData: map[string]string{
			"school_reg_id":      school.SchoolRegID,
			"school_name":        school.SchoolName,
			"principal_name":     school.PrincipalName,
			"coordinator_name":   school.CoordinatorName,
			"coordinator_number": school.CoordinatorNumber,
			"state":              school.State,
			"district":           school.District,
		},
	}

	if intent.Kind == models.IntentKindTeam {
		event.Recipients = append(event.Recipients,
			models.EmailRecipient{Email: school.CoordinatorEmail, Name: school.CoordinatorName})
		for _, t := range result.teams {
			name, _ := regid.EventName(t.Event)
			event.TeamTable = append(event.TeamTable, models.TeamTableRow{
				TeamID:    t.TeamRegID,
				EventName: name,
				TeamSize:  fmt.Sprintf("%d", t.TeamSize),
			})
		}
	}

	if err := r.publisher.PublishRegistrationCompleted(ctx, event); err != nil {
		r.logger.Error("Failed to publish RegistrationCompleted event", zap.Error(err))
	}
}

func (r *Reconciler) publishPaymentFailed(ctx context.Context, kind, orderID, paymentID, reason string) {
	if r.publisher == nil {
		return
	}
	event := &models.PaymentFailedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePaymentFailed,
			Timestamp: time.Now(),
		},
		Kind:      kind,
		OrderID:   orderID,
		PaymentID: paymentID,
		Reason:    reason,
	}
	if err := r.publisher.PublishPaymentFailed(ctx, event); err != nil {
		r.logger.Error("Failed to publish PaymentFailed event", zap.Error(err))
	}
}

// VerifyRequest carries the client's polled payment identifiers and the
// gateway-issued confirmation signature.
type VerifyRequest struct {
	OrderID   string `json:"order_id" binding:"required"`
	PaymentID string `json:"payment_id" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// VerifyResult is the poll response. Terminal results are immutable and
// cacheable.
type VerifyResult struct {
	Status          string     `json:"status"`
	Message         string     `json:"message,omitempty"`
	SchoolRegID     string     `json:"school_reg_id,omitempty"`
	RegistrationIDs []string   `json:"registration_ids,omitempty"`
	Amount          int64      `json:"amount,omitempty"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	PDFName         string     `json:"pdf_name,omitempty"`
	PDFBase64       string     `json:"pdf_base64,omitempty"`
}

// Terminal reports whether the status will never change again.
func (v *VerifyResult) Terminal() bool {
	return v.Status == StatusRegistered || v.Status == StatusFailed
}

// VerifyPayment answers a client poll. It independently recomputes the
// payment signature and never mutates intent state: if both this path and the
// webhook observe a created intent, only the webhook registers.
func (r *Reconciler) VerifyPayment(ctx context.Context, req *VerifyRequest) (*VerifyResult, error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.VerifyPayment")
	defer span.End()

	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" {
		return nil, invalidf("missing payment verification fields")
	}
	if !gateway.VerifyPaymentSignature(r.keySecret, req.OrderID, req.PaymentID, req.Signature) {
		return nil, ErrBadSignature
	}

	if r.cache != nil {
		if cached, err := r.cache.GetCachedVerifyResult(ctx, req.OrderID); err == nil && cached != nil {
			var result VerifyResult
			if err := json.Unmarshal(cached, &result); err == nil {
				util.VerifyRequestsTotal.WithLabelValues(result.Status).Inc()
				return &result, nil
			}
		}
	}

	intent, err := r.store.GetIntentByOrderID(ctx, req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment intent: %w", err)
	}

	var result *VerifyResult
	switch {
	case intent == nil:
		result = &VerifyResult{
			Status:  StatusPending,
			Message: "Payment captured but not recorded yet. Please retry shortly.",
		}

	case intent.Status == models.PaymentStatusFailed:
		result = &VerifyResult{
			Status:  StatusFailed,
			Message: intent.FailureReason.String,
		}
		if result.Message == "" {
			result.Message = "Payment failed."
		}

	case intent.Status == models.PaymentStatusPaid && intent.Verified:
		result = &VerifyResult{
			Status:          StatusRegistered,
			SchoolRegID:     intent.SchoolRegID.String,
			RegistrationIDs: intent.RegistrationIDs,
			Amount:          intent.Amount,
			PDFName:         intent.PDFName.String,
			PDFBase64:       intent.PDFBase64.String,
		}
		if intent.PaidAt.Valid {
			paidAt := intent.PaidAt.Time
			result.PaidAt = &paidAt
		}

	default:
		result = &VerifyResult{
			Status:  StatusProcessing,
			Message: "Payment is verified but registration is still in progress. Try again soon.",
		}
	}

	if result.Terminal() && r.cache != nil {
		if payload, err := json.Marshal(result); err == nil {
			if err := r.cache.CacheVerifyResult(ctx, req.OrderID, payload, verifyCacheTTL); err != nil {
				r.logger.Warn("Failed to cache verify result", zap.Error(err))
			}
		}
	}

	util.VerifyRequestsTotal.WithLabelValues(result.Status).Inc()
	return result, nil
}
