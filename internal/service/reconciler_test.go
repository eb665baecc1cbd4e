package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"btl-backend/internal/gateway"
	"btl-backend/internal/models"
	"btl-backend/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory DataStore with the same transition semantics as
// the SQL implementation: AllocateNext is atomic, finalize commits rows and
// the paid transition together, and MarkIntentFailed never demotes paid.
type fakeStore struct {
	mu          sync.Mutex
	counters    map[string]int
	schools     map[string]*models.School
	teams       []models.Team
	intents     map[string]*models.PaymentIntent
	workshops   map[string]*models.WorkshopRegistration
	submissions map[string]*models.Submission

	failFinalize  bool
	failSchoolGet error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		counters:    make(map[string]int),
		schools:     make(map[string]*models.School),
		intents:     make(map[string]*models.PaymentIntent),
		workshops:   make(map[string]*models.WorkshopRegistration),
		submissions: make(map[string]*models.Submission),
	}
}

func counterKey(kind models.CounterKind, key string) string {
	return string(kind) + "/" + key
}

func (f *fakeStore) AllocateNext(ctx context.Context, kind models.CounterKind, key string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[counterKey(kind, key)]++
	return f.counters[counterKey(kind, key)], nil
}

func (f *fakeStore) PeekCurrent(ctx context.Context, kind models.CounterKind, key string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counters[counterKey(kind, key)], nil
}

func (f *fakeStore) SetTo(ctx context.Context, kind models.CounterKind, key string, value int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[counterKey(kind, key)] = value
	return nil
}

func (f *fakeStore) CreateIntent(ctx context.Context, intent *models.PaymentIntent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *intent
	cp.CreatedAt = time.Now()
	f.intents[intent.OrderID] = &cp
	return nil
}

func (f *fakeStore) GetIntentByOrderID(ctx context.Context, orderID string) (*models.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	intent, ok := f.intents[orderID]
	if !ok {
		return nil, nil
	}
	cp := *intent
	return &cp, nil
}

func (f *fakeStore) MarkIntentFailed(ctx context.Context, orderID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	intent, ok := f.intents[orderID]
	if !ok || intent.Status == models.PaymentStatusPaid {
		return nil
	}
	intent.Status = models.PaymentStatusFailed
	intent.FailureReason = sql.NullString{String: reason, Valid: true}
	return nil
}

func (f *fakeStore) markPaidLocked(orderID, paymentID, schoolRegID string, regIDs []string) error {
	intent, ok := f.intents[orderID]
	if !ok || intent.Status != models.PaymentStatusCreated {
		return fmt.Errorf("intent for order %s is not in created state", orderID)
	}
	intent.Status = models.PaymentStatusPaid
	intent.Verified = true
	intent.PaymentID = sql.NullString{String: paymentID, Valid: true}
	intent.SchoolRegID = sql.NullString{String: schoolRegID, Valid: true}
	intent.RegistrationIDs = regIDs
	intent.PaidAt = sql.NullTime{Time: time.Now(), Valid: true}
	return nil
}

func (f *fakeStore) FinalizeSchoolRegistration(ctx context.Context, orderID, paymentID string, newSchool *models.School, schoolRegID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFinalize {
		return fmt.Errorf("storage unavailable")
	}
	if err := f.markPaidLocked(orderID, paymentID, schoolRegID, []string{schoolRegID}); err != nil {
		return err
	}
	if newSchool != nil {
		cp := *newSchool
		cp.CreatedAt = time.Now()
		f.schools[newSchool.SchoolRegID] = &cp
	}
	return nil
}

func (f *fakeStore) FinalizeTeamRegistration(ctx context.Context, orderID, paymentID string, teams []models.Team) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFinalize {
		return fmt.Errorf("storage unavailable")
	}
	for _, t := range teams {
		for _, existing := range f.teams {
			if existing.TeamRegID == t.TeamRegID && existing.Event == t.Event && existing.State == t.State {
				return fmt.Errorf("failed to insert team %s: unique violation", t.TeamRegID)
			}
		}
	}
	regIDs := make([]string, 0, len(teams))
	for _, t := range teams {
		regIDs = append(regIDs, t.TeamRegID)
	}
	if err := f.markPaidLocked(orderID, paymentID, teams[0].SchoolRegID, regIDs); err != nil {
		return err
	}
	f.teams = append(f.teams, teams...)
	return nil
}

func (f *fakeStore) UpdateIntentPDF(ctx context.Context, orderID, pdfName, pdfBase64 string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if intent, ok := f.intents[orderID]; ok {
		intent.PDFName = sql.NullString{String: pdfName, Valid: true}
		intent.PDFBase64 = sql.NullString{String: pdfBase64, Valid: true}
	}
	return nil
}

func (f *fakeStore) MarkIntentEmailSent(ctx context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if intent, ok := f.intents[orderID]; ok {
		intent.EmailSent = true
	}
	return nil
}

func (f *fakeStore) GetSchoolByRegID(ctx context.Context, schoolRegID string) (*models.School, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSchoolGet != nil {
		return nil, f.failSchoolGet
	}
	school, ok := f.schools[schoolRegID]
	if !ok {
		return nil, fmt.Errorf("school %s: %w", schoolRegID, store.ErrNotFound)
	}
	cp := *school
	return &cp, nil
}

func (f *fakeStore) GetSchoolByEmail(ctx context.Context, email string) (*models.School, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, school := range f.schools {
		if school.SchoolEmail == email {
			cp := *school
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetTeamsBySchool(ctx context.Context, schoolRegID string) ([]models.Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Team
	for _, t := range f.teams {
		if t.SchoolRegID == schoolRegID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) GetTeamByRegID(ctx context.Context, teamRegID string) (*models.Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.teams {
		if t.TeamRegID == teamRegID {
			cp := t
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) MaxTeamRegID(ctx context.Context, prefix string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var max string
	for _, t := range f.teams {
		if len(t.TeamRegID) >= len(prefix) && t.TeamRegID[:len(prefix)] == prefix && t.TeamRegID > max {
			max = t.TeamRegID
		}
	}
	return max, nil
}

func (f *fakeStore) CreateWorkshopRegistration(ctx context.Context, reg *models.WorkshopRegistration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *reg
	cp.CreatedAt = time.Now()
	f.workshops[reg.Email] = &cp
	return nil
}

func (f *fakeStore) GetWorkshopByEmail(ctx context.Context, email string) (*models.WorkshopRegistration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reg, ok := f.workshops[email]
	if !ok {
		return nil, nil
	}
	cp := *reg
	return &cp, nil
}

func (f *fakeStore) ListWorkshopRegistrations(ctx context.Context) ([]models.WorkshopRegistration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.WorkshopRegistration, 0, len(f.workshops))
	for _, reg := range f.workshops {
		out = append(out, *reg)
	}
	return out, nil
}

func (f *fakeStore) MarkWorkshopPaid(ctx context.Context, registrationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, reg := range f.workshops {
		if reg.RegistrationID == registrationID {
			reg.Paid = true
			return nil
		}
	}
	return fmt.Errorf("workshop registration not found")
}

func (f *fakeStore) DeleteWorkshopRegistration(ctx context.Context, registrationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for email, reg := range f.workshops {
		if reg.RegistrationID == registrationID {
			delete(f.workshops, email)
			return nil
		}
	}
	return fmt.Errorf("workshop registration not found")
}

func (f *fakeStore) CreateSubmission(ctx context.Context, sub *models.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *sub
	cp.CreatedAt = time.Now()
	f.submissions[sub.TeamRegID+"/"+sub.Track] = &cp
	return nil
}

func (f *fakeStore) GetSubmission(ctx context.Context, teamRegID, track string) (*models.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.submissions[teamRegID+"/"+track]
	if !ok {
		return nil, nil
	}
	cp := *sub
	return &cp, nil
}

// fakePublisher records published events.
type fakePublisher struct {
	mu        sync.Mutex
	completed []*models.RegistrationCompletedEvent
	failed    []*models.PaymentFailedEvent
}

func (p *fakePublisher) PublishRegistrationCompleted(ctx context.Context, event *models.RegistrationCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = append(p.completed, event)
	return nil
}

func (p *fakePublisher) PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, event)
	return nil
}

const (
	testWebhookSecret = "whsec_test"
	testKeySecret     = "key_secret_test"
)

func newTestReconciler(store *fakeStore, pub *fakePublisher) *Reconciler {
	return NewReconciler(store, nil, pub, nil, testWebhookSecret, testKeySecret, 10)
}

func capturedWebhook(t *testing.T, orderID, paymentID string) ([]byte, string) {
	t.Helper()
	var event gateway.WebhookEvent
	event.Event = gateway.EventPaymentCaptured
	event.Payload.Payment.Entity = gateway.PaymentEntity{
		ID:      paymentID,
		OrderID: orderID,
	}
	body, err := json.Marshal(event)
	require.NoError(t, err)
	return body, gateway.WebhookSignature(testWebhookSecret, body)
}

func failedWebhook(t *testing.T, orderID, paymentID, reason string) ([]byte, string) {
	t.Helper()
	var event gateway.WebhookEvent
	event.Event = gateway.EventPaymentFailed
	event.Payload.Payment.Entity = gateway.PaymentEntity{
		ID:               paymentID,
		OrderID:          orderID,
		ErrorDescription: reason,
	}
	body, err := json.Marshal(event)
	require.NoError(t, err)
	return body, gateway.WebhookSignature(testWebhookSecret, body)
}

func schoolIntent(orderID string) *models.PaymentIntent {
	return &models.PaymentIntent{
		Kind:       models.IntentKindSchool,
		OrderID:    orderID,
		PayerEmail: "info@dps-vizag.example",
		Amount:     999,
		Status:     models.PaymentStatusCreated,
		Snapshot: models.IntentSnapshot{
			Version: models.SnapshotVersion,
			School: &models.SchoolSnapshot{
				SchoolName:        "Delhi Public School",
				PrincipalName:     "R. Sharma",
				SchoolContact:     "9876543210",
				SchoolEmail:       "info@dps-vizag.example",
				CoordinatorName:   "A. Rao",
				CoordinatorNumber: "9876500000",
				CoordinatorEmail:  "rao@dps-vizag.example",
				SchoolAddress:     "Beach Road",
				State:             "Andhra Pradesh",
				District:          "Visakhapatnam",
			},
		},
	}
}

func teamSnapshots(numbers ...int) []models.TeamSnapshot {
	out := make([]models.TeamSnapshot, 0, len(numbers))
	for _, n := range numbers {
		out = append(out, models.TeamSnapshot{
			TeamName:   fmt.Sprintf("Team %d", n),
			TeamNumber: n,
			TeamSize:   2,
			Event:      "ASB",
			Members: []models.TeamMember{
				{Name: "A", ClassGrade: "8", Gender: "F"},
				{Name: "B", ClassGrade: "9", Gender: "M"},
			},
		})
	}
	return out
}

func teamIntent(orderID, schoolRegID string, teams []models.TeamSnapshot) *models.PaymentIntent {
	var amount int64
	for _, t := range teams {
		amount += int64(t.TeamSize) * 499
	}
	return &models.PaymentIntent{
		Kind:       models.IntentKindTeam,
		OrderID:    orderID,
		PayerEmail: "rao@dps-vizag.example",
		Amount:     amount,
		Status:     models.PaymentStatusCreated,
		Snapshot: models.IntentSnapshot{
			Version:     models.SnapshotVersion,
			SchoolRegID: schoolRegID,
			Teams:       teams,
		},
	}
}

func registerTestSchool(t *testing.T, store *fakeStore, r *Reconciler, orderID string) string {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.CreateIntent(ctx, schoolIntent(orderID)))
	body, sig := capturedWebhook(t, orderID, "pay_"+orderID)
	_, err := r.HandleWebhook(ctx, body, sig)
	require.NoError(t, err)
	intent, err := store.GetIntentByOrderID(ctx, orderID)
	require.NoError(t, err)
	require.True(t, intent.SchoolRegID.Valid)
	return intent.SchoolRegID.String
}

func TestWebhookRegistersSchool(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	r := newTestReconciler(store, pub)
	ctx := context.Background()

	require.NoError(t, store.CreateIntent(ctx, schoolIntent("order_1")))

	body, sig := capturedWebhook(t, "order_1", "pay_1")
	msg, err := r.HandleWebhook(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, "registration completed", msg)

	intent, err := store.GetIntentByOrderID(ctx, "order_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, intent.Status)
	assert.True(t, intent.Verified)
	assert.Equal(t, "APVS001", intent.SchoolRegID.String)
	assert.Equal(t, models.StringList{"APVS001"}, intent.RegistrationIDs)
	assert.True(t, intent.PaidAt.Valid)

	school, err := store.GetSchoolByRegID(ctx, "APVS001")
	require.NoError(t, err)
	assert.Equal(t, "Delhi Public School", school.SchoolName)
	assert.Equal(t, "Andhra Pradesh", school.State)

	require.Len(t, pub.completed, 1)
	assert.Equal(t, []string{"APVS001"}, pub.completed[0].RegistrationIDs)
}

func TestWebhookBadSignatureHasNoSideEffects(t *testing.T) {
	store := newFakeStore()
	r := newTestReconciler(store, &fakePublisher{})
	ctx := context.Background()

	require.NoError(t, store.CreateIntent(ctx, schoolIntent("order_1")))

	body, _ := capturedWebhook(t, "order_1", "pay_1")
	_, err := r.HandleWebhook(ctx, body, "0000000000000000")
	assert.ErrorIs(t, err, ErrBadSignature)

	intent, err := store.GetIntentByOrderID(ctx, "order_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCreated, intent.Status)
	assert.Empty(t, store.schools)
	assert.Empty(t, store.counters)
}

func TestWebhookMalformedPayload(t *testing.T) {
	r := newTestReconciler(newFakeStore(), &fakePublisher{})

	body := []byte(`{"event": "payment.captured", "payload":`)
	sig := gateway.WebhookSignature(testWebhookSecret, body)
	_, err := r.HandleWebhook(context.Background(), body, sig)
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestWebhookIgnoresUnknownEvent(t *testing.T) {
	r := newTestReconciler(newFakeStore(), &fakePublisher{})

	body := []byte(`{"event": "refund.processed", "payload": {}}`)
	sig := gateway.WebhookSignature(testWebhookSecret, body)
	msg, err := r.HandleWebhook(context.Background(), body, sig)
	require.NoError(t, err)
	assert.Contains(t, msg, "ignoring")
}

// A redelivered captured webhook for an already-paid order must acknowledge
// without touching counters, rows or events.
func TestWebhookIdempotentOnRedelivery(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	r := newTestReconciler(store, pub)
	ctx := context.Background()

	require.NoError(t, store.CreateIntent(ctx, schoolIntent("order_1")))
	body, sig := capturedWebhook(t, "order_1", "pay_1")

	_, err := r.HandleWebhook(ctx, body, sig)
	require.NoError(t, err)

	msg, err := r.HandleWebhook(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, "payment already processed", msg)

	assert.Equal(t, 1, store.counters[counterKey(models.CounterKindSchool, "APVS")])
	assert.Len(t, store.schools, 1)
	assert.Len(t, pub.completed, 1)
}

func TestWebhookUnknownOrderAcknowledged(t *testing.T) {
	store := newFakeStore()
	r := newTestReconciler(store, &fakePublisher{})

	body, sig := capturedWebhook(t, "order_unknown", "pay_1")
	msg, err := r.HandleWebhook(context.Background(), body, sig)
	require.NoError(t, err)
	assert.Equal(t, "no matching payment intent", msg)
}

// Sequence numbers for a batch come from consecutive atomic allocations:
// with the counter already at 3, a 3-team batch gets 004, 005, 006.
func TestTeamBatchConsecutiveSequences(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	r := newTestReconciler(store, pub)
	ctx := context.Background()

	schoolRegID := registerTestSchool(t, store, r, "order_school")
	require.NoError(t, store.SetTo(ctx, models.CounterKindTeam, "APASB", 3))

	require.NoError(t, store.CreateIntent(ctx, teamIntent("order_teams", schoolRegID, teamSnapshots(1, 2, 3))))
	body, sig := capturedWebhook(t, "order_teams", "pay_teams")
	msg, err := r.HandleWebhook(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, "registration completed", msg)

	intent, err := store.GetIntentByOrderID(ctx, "order_teams")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, intent.Status)
	assert.True(t, intent.Verified)
	assert.Equal(t, models.StringList{"APASB004", "APASB005", "APASB006"}, intent.RegistrationIDs)

	teams, err := store.GetTeamsBySchool(ctx, schoolRegID)
	require.NoError(t, err)
	require.Len(t, teams, 3)
	for i, team := range teams {
		assert.Equal(t, fmt.Sprintf("APASB%03d", 4+i), team.TeamRegID)
		assert.Equal(t, "Andhra Pradesh", team.State)
	}

	// school event plus team event
	require.Len(t, pub.completed, 2)
	teamEvent := pub.completed[1]
	assert.Len(t, teamEvent.TeamTable, 3)
	assert.Equal(t, "Astrobot", teamEvent.TeamTable[0].EventName)
}

// One bad entry rejects the whole batch before any row insert or counter
// movement, and the intent reaches the failed terminal state.
func TestTeamBatchDuplicateNumberRejectsWholeBatch(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	r := newTestReconciler(store, pub)
	ctx := context.Background()

	schoolRegID := registerTestSchool(t, store, r, "order_school")

	teams := teamSnapshots(1, 2)
	teams[1].TeamNumber = 1
	require.NoError(t, store.CreateIntent(ctx, teamIntent("order_teams", schoolRegID, teams)))

	body, sig := capturedWebhook(t, "order_teams", "pay_teams")
	msg, err := r.HandleWebhook(ctx, body, sig)
	require.NoError(t, err)
	assert.Contains(t, msg, "registration failed")

	intent, err := store.GetIntentByOrderID(ctx, "order_teams")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, intent.Status)
	assert.Contains(t, intent.FailureReason.String, "duplicate team number")

	existing, err := store.GetTeamsBySchool(ctx, schoolRegID)
	require.NoError(t, err)
	assert.Empty(t, existing)
	assert.Zero(t, store.counters[counterKey(models.CounterKindTeam, "APASB")])

	require.Len(t, pub.failed, 1)
	assert.Equal(t, "order_teams", pub.failed[0].OrderID)
}

// A transient storage failure must leave the intent created so gateway
// redelivery can complete the registration later.
func TestTransientFailureThenRedelivery(t *testing.T) {
	store := newFakeStore()
	r := newTestReconciler(store, &fakePublisher{})
	ctx := context.Background()

	require.NoError(t, store.CreateIntent(ctx, schoolIntent("order_1")))
	body, sig := capturedWebhook(t, "order_1", "pay_1")

	store.failFinalize = true
	_, err := r.HandleWebhook(ctx, body, sig)
	require.Error(t, err)

	intent, err := store.GetIntentByOrderID(ctx, "order_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCreated, intent.Status)

	store.failFinalize = false
	msg, err := r.HandleWebhook(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, "registration completed", msg)
}

// A storage error while loading the school is transient, not a missing
// school: the webhook must answer 5xx with the intent left created, and a
// later redelivery must complete the registration.
func TestTeamWebhookSchoolLookupErrorIsTransient(t *testing.T) {
	store := newFakeStore()
	r := newTestReconciler(store, &fakePublisher{})
	ctx := context.Background()

	schoolRegID := registerTestSchool(t, store, r, "order_school")
	require.NoError(t, store.CreateIntent(ctx, teamIntent("order_teams", schoolRegID, teamSnapshots(1, 2))))

	store.failSchoolGet = fmt.Errorf("connection reset by peer")
	body, sig := capturedWebhook(t, "order_teams", "pay_teams")
	_, err := r.HandleWebhook(ctx, body, sig)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrValidation)

	intent, err := store.GetIntentByOrderID(ctx, "order_teams")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCreated, intent.Status)

	store.failSchoolGet = nil
	msg, err := r.HandleWebhook(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, "registration completed", msg)

	intent, err = store.GetIntentByOrderID(ctx, "order_teams")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, intent.Status)
	assert.True(t, intent.Verified)
}

// A genuinely missing school is still a permanent validation failure.
func TestTeamWebhookUnknownSchoolIsPermanent(t *testing.T) {
	store := newFakeStore()
	r := newTestReconciler(store, &fakePublisher{})
	ctx := context.Background()

	require.NoError(t, store.CreateIntent(ctx, teamIntent("order_teams", "APVS999", teamSnapshots(1))))

	body, sig := capturedWebhook(t, "order_teams", "pay_teams")
	msg, err := r.HandleWebhook(ctx, body, sig)
	require.NoError(t, err)
	assert.Contains(t, msg, "registration failed")

	intent, err := store.GetIntentByOrderID(ctx, "order_teams")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, intent.Status)
}

func TestWebhookPaymentFailed(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	r := newTestReconciler(store, pub)
	ctx := context.Background()

	require.NoError(t, store.CreateIntent(ctx, schoolIntent("order_1")))

	body, sig := failedWebhook(t, "order_1", "pay_1", "card declined")
	msg, err := r.HandleWebhook(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, "payment failure recorded", msg)

	intent, err := store.GetIntentByOrderID(ctx, "order_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, intent.Status)
	assert.Equal(t, "card declined", intent.FailureReason.String)
	require.Len(t, pub.failed, 1)
	assert.Equal(t, "card declined", pub.failed[0].Reason)
}

// A school already registered under the snapshot email is reused: no second
// row, no counter movement, the intent still reaches paid+verified.
func TestCapturedWebhookReusesExistingSchool(t *testing.T) {
	store := newFakeStore()
	r := newTestReconciler(store, &fakePublisher{})
	ctx := context.Background()

	registerTestSchool(t, store, r, "order_1")

	require.NoError(t, store.CreateIntent(ctx, schoolIntent("order_2")))
	body, sig := capturedWebhook(t, "order_2", "pay_2")
	_, err := r.HandleWebhook(ctx, body, sig)
	require.NoError(t, err)

	intent, err := store.GetIntentByOrderID(ctx, "order_2")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, intent.Status)
	assert.Equal(t, "APVS001", intent.SchoolRegID.String)
	assert.Len(t, store.schools, 1)
	assert.Equal(t, 1, store.counters[counterKey(models.CounterKindSchool, "APVS")])
}

// Concurrent batches for the same (event, state) must interleave without ID
// collisions.
func TestConcurrentTeamBatchesGetDisjointIDs(t *testing.T) {
	store := newFakeStore()
	r := newTestReconciler(store, &fakePublisher{})
	ctx := context.Background()

	schoolRegID := registerTestSchool(t, store, r, "order_school")

	require.NoError(t, store.CreateIntent(ctx, teamIntent("order_a", schoolRegID, teamSnapshots(1, 2))))
	require.NoError(t, store.CreateIntent(ctx, teamIntent("order_b", schoolRegID, teamSnapshots(3, 4))))

	var wg sync.WaitGroup
	for _, orderID := range []string{"order_a", "order_b"} {
		wg.Add(1)
		go func(orderID string) {
			defer wg.Done()
			body, sig := capturedWebhook(t, orderID, "pay_"+orderID)
			_, _ = r.HandleWebhook(ctx, body, sig)
		}(orderID)
	}
	wg.Wait()

	teams, err := store.GetTeamsBySchool(ctx, schoolRegID)
	require.NoError(t, err)

	// At least one batch succeeded; both may, depending on interleaving of
	// the shared-school validation. Every persisted ID must be unique.
	ids := make([]string, 0, len(teams))
	for _, team := range teams {
		ids = append(ids, team.TeamRegID)
	}
	sort.Strings(ids)
	for i := 1; i < len(ids); i++ {
		assert.NotEqual(t, ids[i-1], ids[i])
	}
	assert.GreaterOrEqual(t, len(ids), 2)
}

func verifyRequest(orderID, paymentID string) *VerifyRequest {
	return &VerifyRequest{
		OrderID:   orderID,
		PaymentID: paymentID,
		Signature: gateway.PaymentSignature(testKeySecret, orderID, paymentID),
	}
}

func TestVerifyBadSignature(t *testing.T) {
	r := newTestReconciler(newFakeStore(), &fakePublisher{})

	_, err := r.VerifyPayment(context.Background(), &VerifyRequest{
		OrderID:   "order_1",
		PaymentID: "pay_1",
		Signature: "not-a-signature",
	})
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyPendingBeforeWebhook(t *testing.T) {
	r := newTestReconciler(newFakeStore(), &fakePublisher{})

	result, err := r.VerifyPayment(context.Background(), verifyRequest("order_1", "pay_1"))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, result.Status)
	assert.False(t, result.Terminal())
}

func TestVerifyProcessingWhileCreated(t *testing.T) {
	store := newFakeStore()
	r := newTestReconciler(store, &fakePublisher{})
	ctx := context.Background()

	require.NoError(t, store.CreateIntent(ctx, schoolIntent("order_1")))

	result, err := r.VerifyPayment(ctx, verifyRequest("order_1", "pay_1"))
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, result.Status)
	assert.False(t, result.Terminal())

	// verify is read-only: the intent state must not have moved
	intent, err := store.GetIntentByOrderID(ctx, "order_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCreated, intent.Status)
}

func TestVerifyRegisteredAfterWebhook(t *testing.T) {
	store := newFakeStore()
	r := newTestReconciler(store, &fakePublisher{})
	ctx := context.Background()

	registerTestSchool(t, store, r, "order_1")

	result, err := r.VerifyPayment(ctx, verifyRequest("order_1", "pay_order_1"))
	require.NoError(t, err)
	assert.Equal(t, StatusRegistered, result.Status)
	assert.True(t, result.Terminal())
	assert.Equal(t, "APVS001", result.SchoolRegID)
	assert.Equal(t, []string{"APVS001"}, result.RegistrationIDs)
	assert.Equal(t, int64(999), result.Amount)
	require.NotNil(t, result.PaidAt)
}

func TestVerifyFailed(t *testing.T) {
	store := newFakeStore()
	r := newTestReconciler(store, &fakePublisher{})
	ctx := context.Background()

	require.NoError(t, store.CreateIntent(ctx, schoolIntent("order_1")))
	body, sig := failedWebhook(t, "order_1", "pay_1", "card declined")
	_, err := r.HandleWebhook(ctx, body, sig)
	require.NoError(t, err)

	result, err := r.VerifyPayment(ctx, verifyRequest("order_1", "pay_1"))
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	assert.True(t, result.Terminal())
	assert.Equal(t, "card declined", result.Message)
}
