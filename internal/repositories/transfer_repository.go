package repositories

import (
	"database/sql"
	"time"

	intconfig "temani/internal/config"
	"temani/internal/domain/models"
)

type TransferRepository struct {
	DB *sql.DB
}

func (r TransferRepository) db() *sql.DB {
	if r.DB != nil {
		return r.DB
	}
	return intconfig.DB
}

// CreatePending records an earned payout that could not be transferred
// at capture time. The unique key on booking_id keeps retried captures
// from duplicating the row.
func (r TransferRepository) CreatePending(q DBTX, t models.PendingTransfer) error {
	if q == nil {
		q = r.db()
	}
	_, err := q.Exec(`
		INSERT INTO pending_transfers
			(booking_id, companion_id, gross_amount, fee_amount, net_amount, reason)
		VALUES (?,?,?,?,?,?)
		ON DUPLICATE KEY UPDATE reason=VALUES(reason)`,
		t.BookingID, t.CompanionID, t.GrossAmount, t.FeeAmount, t.NetAmount, t.Reason)
	return err
}

// MarkSettled stamps a manual payout as done.
func (r TransferRepository) MarkSettled(id int64, transferRef string, at time.Time) error {
	_, err := r.db().Exec(`
		UPDATE pending_transfers SET settled_at=?, transfer_ref=? WHERE id=? AND settled_at IS NULL`,
		at, transferRef, id)
	return err
}

// ListUnsettled returns payouts awaiting manual settlement.
func (r TransferRepository) ListUnsettled() ([]models.PendingTransfer, error) {
	rows, err := r.db().Query(`
		SELECT id, booking_id, companion_id, gross_amount, fee_amount, net_amount,
		       reason, settled_at, COALESCE(transfer_ref, ''), created_at
		FROM pending_transfers WHERE settled_at IS NULL ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.PendingTransfer
	for rows.Next() {
		var t models.PendingTransfer
		var settled sql.NullTime
		if err := rows.Scan(&t.ID, &t.BookingID, &t.CompanionID, &t.GrossAmount, &t.FeeAmount,
			&t.NetAmount, &t.Reason, &settled, &t.TransferRef, &t.CreatedAt); err != nil {
			return nil, err
		}
		if settled.Valid {
			ts := settled.Time
			t.SettledAt = &ts
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
