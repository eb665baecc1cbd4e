package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"btl-backend/internal/models"
)

// CreateIntent records a new payment intent in the created state.
func (s *Store) CreateIntent(ctx context.Context, intent *models.PaymentIntent) error {
	const query = `
		INSERT INTO payment_intents (
			kind, order_id, payer_email, school_reg_id, amount, status, snapshot
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, intent, query,
		intent.Kind, intent.OrderID, intent.PayerEmail, intent.SchoolRegID,
		intent.Amount, intent.Status, intent.Snapshot)
}

// GetIntentByOrderID retrieves a payment intent by gateway order ID,
// or nil if no intent exists yet.
func (s *Store) GetIntentByOrderID(ctx context.Context, orderID string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := s.db.GetContext(ctx, &intent,
		"SELECT * FROM payment_intents WHERE order_id = $1", orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

// MarkIntentFailed transitions an intent to the failed terminal state with a
// reason. Idempotent, and never demotes an intent that already reached paid.
func (s *Store) MarkIntentFailed(ctx context.Context, orderID, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE payment_intents
		SET status = $1, failure_reason = $2, updated_at = NOW()
		WHERE order_id = $3 AND status <> $4`,
		models.PaymentStatusFailed, reason, orderID, models.PaymentStatusPaid)
	return err
}

// FinalizeSchoolRegistration commits a captured school payment: the school row
// (when newSchool is non-nil) and the intent's transition to paid+verified are
// one transaction, so the row and the terminal state always agree.
func (s *Store) FinalizeSchoolRegistration(ctx context.Context, orderID, paymentID string, newSchool *models.School, schoolRegID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if newSchool != nil {
		if err := insertSchoolTx(ctx, tx, newSchool); err != nil {
			return fmt.Errorf("failed to insert school: %w", err)
		}
	}

	if err := markIntentPaidTx(ctx, tx, orderID, paymentID, schoolRegID, models.StringList{schoolRegID}); err != nil {
		return err
	}

	return tx.Commit()
}

// FinalizeTeamRegistration commits a captured batch payment: all N team rows
// and the intent's transition to paid+verified are one transaction. A crash or
// error anywhere rolls back every row, leaving the intent created for retry.
func (s *Store) FinalizeTeamRegistration(ctx context.Context, orderID, paymentID string, teams []models.Team) error {
	if len(teams) == 0 {
		return fmt.Errorf("no teams to register for order %s", orderID)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	regIDs := make(models.StringList, 0, len(teams))
	for i := range teams {
		if err := insertTeamTx(ctx, tx, &teams[i]); err != nil {
			return fmt.Errorf("failed to insert team %s: %w", teams[i].TeamRegID, err)
		}
		regIDs = append(regIDs, teams[i].TeamRegID)
	}

	if err := markIntentPaidTx(ctx, tx, orderID, paymentID, teams[0].SchoolRegID, regIDs); err != nil {
		return err
	}

	return tx.Commit()
}

func markIntentPaidTx(ctx context.Context, tx sqlxExecer, orderID, paymentID, schoolRegID string, regIDs models.StringList) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE payment_intents
		SET status = $1, verified = TRUE, payment_id = $2, school_reg_id = $3,
		    registration_ids = $4, paid_at = NOW(), updated_at = NOW()
		WHERE order_id = $5 AND status = $6`,
		models.PaymentStatusPaid, paymentID, schoolRegID, regIDs,
		orderID, models.PaymentStatusCreated)
	if err != nil {
		return fmt.Errorf("failed to mark intent paid: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("intent for order %s is not in created state", orderID)
	}
	return nil
}

// UpdateIntentPDF attaches a rendered confirmation document to an intent.
// Best-effort post-commit; a failure here never reverts the registration.
func (s *Store) UpdateIntentPDF(ctx context.Context, orderID, pdfName, pdfBase64 string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE payment_intents
		SET pdf_name = $1, pdf_base64 = $2, updated_at = NOW()
		WHERE order_id = $3`,
		pdfName, pdfBase64, orderID)
	return err
}

// MarkIntentEmailSent flips the email-sent flag after confirmation mail goes out.
func (s *Store) MarkIntentEmailSent(ctx context.Context, orderID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE payment_intents SET email_sent = TRUE, updated_at = NOW() WHERE order_id = $1",
		orderID)
	return err
}
