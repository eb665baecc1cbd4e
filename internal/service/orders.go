package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"btl-backend/internal/gateway"
	"btl-backend/internal/models"
	"btl-backend/internal/regid"
	"btl-backend/internal/store"
	"btl-backend/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// OrderService creates payment-gateway orders and the matching payment
// intents. Registration itself happens later, in the webhook path.
type OrderService struct {
	store    DataStore
	gw       OrderCreator
	fees     Fees
	teamsCap int
	logger   *zap.Logger
}

// Fees holds registration pricing in rupees.
type Fees struct {
	School     int64
	TeamMember int64
}

// NewOrderService creates a new order service
func NewOrderService(store DataStore, gw OrderCreator, fees Fees, teamsCap int) *OrderService {
	return &OrderService{
		store:    store,
		gw:       gw,
		fees:     fees,
		teamsCap: teamsCap,
		logger:   util.GetLogger(),
	}
}

// TeamOrderRequest is a request to pay for a batch of teams.
type TeamOrderRequest struct {
	SchoolRegID string                `json:"school_reg_id" binding:"required"`
	PayerEmail  string                `json:"payer_email" binding:"required"`
	Teams       []models.TeamSnapshot `json:"teams" binding:"required,min=1"`
}

// CreateSchoolOrder validates a school registration payload, creates a
// gateway order for the school fee, and stores an intent carrying the
// validated snapshot for the webhook to replay.
func (s *OrderService) CreateSchoolOrder(ctx context.Context, snap models.SchoolSnapshot) (*gateway.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateSchoolOrder")
	defer span.End()

	if err := validateSchoolSnapshot(&snap); err != nil {
		return nil, err
	}

	existing, err := s.store.GetSchoolByEmail(ctx, snap.SchoolEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to check school email: %w", err)
	}
	if existing != nil {
		return nil, invalidf("school already registered with id %s", existing.SchoolRegID)
	}

	receipt := fmt.Sprintf("school_reg_%s", uuid.New().String()[:8])
	order, err := s.gw.CreateOrder(ctx, s.fees.School*100, receipt, map[string]string{
		"kind":        models.IntentKindSchool,
		"payer_email": snap.SchoolEmail,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway order: %w", err)
	}

	intent := &models.PaymentIntent{
		Kind:       models.IntentKindSchool,
		OrderID:    order.ID,
		PayerEmail: snap.SchoolEmail,
		Amount:     s.fees.School,
		Status:     models.PaymentStatusCreated,
		Snapshot: models.IntentSnapshot{
			Version: models.SnapshotVersion,
			School:  &snap,
		},
	}
	if err := s.store.CreateIntent(ctx, intent); err != nil {
		return nil, fmt.Errorf("failed to record payment intent: %w", err)
	}

	util.PaymentOrdersCreatedTotal.WithLabelValues(models.IntentKindSchool).Inc()
	s.logger.Info("School payment order created",
		zap.String("order_id", order.ID),
		zap.String("school_email", snap.SchoolEmail))
	return order, nil
}

// CreateTeamOrder validates a team batch against the school's existing teams,
// creates a gateway order for the total fee, and stores an intent with the
// batch snapshot.
func (s *OrderService) CreateTeamOrder(ctx context.Context, req *TeamOrderRequest) (*gateway.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateTeamOrder")
	defer span.End()

	if !emailPattern.MatchString(req.PayerEmail) {
		return nil, invalidf("invalid payer email")
	}

	school, err := s.store.GetSchoolByRegID(ctx, req.SchoolRegID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, invalidf("school %s not found", req.SchoolRegID)
		}
		return nil, fmt.Errorf("failed to load school %s: %w", req.SchoolRegID, err)
	}

	existing, err := s.store.GetTeamsBySchool(ctx, req.SchoolRegID)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing teams: %w", err)
	}
	if err := validateTeamBatch(existing, req.Teams, s.teamsCap); err != nil {
		return nil, err
	}
	if _, err := regid.StateCode(school.State); err != nil {
		return nil, invalidf("%v", err)
	}

	var amount int64
	for _, t := range req.Teams {
		amount += int64(t.TeamSize) * s.fees.TeamMember
	}

	receipt := fmt.Sprintf("team_reg_%s", uuid.New().String()[:8])
	order, err := s.gw.CreateOrder(ctx, amount*100, receipt, map[string]string{
		"kind":          models.IntentKindTeam,
		"school_reg_id": req.SchoolRegID,
		"payer_email":   req.PayerEmail,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway order: %w", err)
	}

	intent := &models.PaymentIntent{
		Kind:       models.IntentKindTeam,
		OrderID:    order.ID,
		PayerEmail: strings.ToLower(req.PayerEmail),
		Amount:     amount,
		Status:     models.PaymentStatusCreated,
		Snapshot: models.IntentSnapshot{
			Version:     models.SnapshotVersion,
			SchoolRegID: req.SchoolRegID,
			Teams:       req.Teams,
		},
	}
	if err := s.store.CreateIntent(ctx, intent); err != nil {
		return nil, fmt.Errorf("failed to record payment intent: %w", err)
	}

	util.PaymentOrdersCreatedTotal.WithLabelValues(models.IntentKindTeam).Inc()
	s.logger.Info("Team payment order created",
		zap.String("order_id", order.ID),
		zap.String("school_reg_id", req.SchoolRegID),
		zap.Int("teams", len(req.Teams)))
	return order, nil
}

func validateSchoolSnapshot(snap *models.SchoolSnapshot) error {
	snap.SchoolEmail = strings.ToLower(strings.TrimSpace(snap.SchoolEmail))
	snap.CoordinatorEmail = strings.ToLower(strings.TrimSpace(snap.CoordinatorEmail))

	switch {
	case snap.SchoolName == "":
		return invalidf("school name is required")
	case snap.PrincipalName == "":
		return invalidf("principal name is required")
	case snap.CoordinatorName == "":
		return invalidf("coordinator name is required")
	case snap.SchoolAddress == "":
		return invalidf("school address is required")
	}
	if !emailPattern.MatchString(snap.SchoolEmail) {
		return invalidf("invalid school email")
	}
	if !emailPattern.MatchString(snap.CoordinatorEmail) {
		return invalidf("invalid coordinator email")
	}
	if _, err := regid.StateCode(snap.State); err != nil {
		return invalidf("%v", err)
	}
	if _, err := regid.DistrictCode(snap.State, snap.District); err != nil {
		return invalidf("%v", err)
	}
	return nil
}

// validateTeamBatch checks a requested batch against a school's existing
// teams. The whole batch is rejected before any row insert or counter
// movement when any entry fails.
func validateTeamBatch(existing []models.Team, batch []models.TeamSnapshot, maxTeams int) error {
	if len(batch) == 0 {
		return invalidf("teams array is required")
	}
	if len(existing)+len(batch) > maxTeams {
		return invalidf("cannot register more than %d teams for this school, already registered: %d",
			maxTeams, len(existing))
	}

	usedNumbers := make(map[int]bool, len(existing)+len(batch))
	for _, t := range existing {
		usedNumbers[t.TeamNumber] = true
	}

	for _, t := range batch {
		if !regid.ValidEventCode(t.Event) {
			return invalidf("invalid event code: %s", t.Event)
		}
		if t.TeamNumber < 1 || usedNumbers[t.TeamNumber] {
			return invalidf("invalid or duplicate team number: %d", t.TeamNumber)
		}
		usedNumbers[t.TeamNumber] = true

		if t.TeamName == "" {
			return invalidf("team %d: team name is required", t.TeamNumber)
		}
		if t.TeamSize < 2 || t.TeamSize > 4 {
			return invalidf("team %d: team size must be 2, 3 or 4", t.TeamNumber)
		}
		if len(t.Members) != t.TeamSize {
			return invalidf("team %d: member count %d does not match team size %d",
				t.TeamNumber, len(t.Members), t.TeamSize)
		}
		for _, m := range t.Members {
			if m.Name == "" || m.ClassGrade == "" || m.Gender == "" {
				return invalidf("team %d: every member needs name, class and gender", t.TeamNumber)
			}
		}
	}
	return nil
}
