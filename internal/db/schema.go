package db

import "database/sql"

// EnsureSchema creates all tables when absent. Statements are additive
// only; column changes go through operator-run migrations.
func EnsureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			email VARCHAR(255) NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			role VARCHAR(20) NOT NULL,
			phone VARCHAR(100) NOT NULL DEFAULT '',
			payout_recipient VARCHAR(100) NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY uniq_email (email)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,

		`CREATE TABLE IF NOT EXISTS bookings (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			client_id BIGINT NOT NULL,
			companion_id BIGINT NOT NULL,
			start_at DATETIME NOT NULL,
			end_at DATETIME NOT NULL,
			total_amount BIGINT NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			payment_status VARCHAR(20) NOT NULL DEFAULT 'pending',
			payment_hold_ref VARCHAR(100) NULL,
			meeting_lat DOUBLE NOT NULL DEFAULT 0,
			meeting_lng DOUBLE NOT NULL DEFAULT 0,
			meeting_address VARCHAR(500) NOT NULL DEFAULT '',
			verification_required TINYINT(1) NOT NULL DEFAULT 1,
			transfer_pending TINYINT(1) NOT NULL DEFAULT 0,
			cancelled_by VARCHAR(20) NULL,
			cancel_reason VARCHAR(500) NULL,
			cancelled_at DATETIME NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			KEY idx_companion_window (companion_id, start_at, end_at),
			KEY idx_status (status),
			KEY idx_payment_status (payment_status)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,

		`CREATE TABLE IF NOT EXISTS verification_records (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			booking_id BIGINT NOT NULL,
			client_code VARCHAR(10) NOT NULL,
			companion_code VARCHAR(10) NOT NULL,
			client_verified_at DATETIME NULL,
			client_lat DOUBLE NULL,
			client_lng DOUBLE NULL,
			companion_verified_at DATETIME NULL,
			companion_lat DOUBLE NULL,
			companion_lng DOUBLE NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			deadline DATETIME NOT NULL,
			extension_used TINYINT(1) NOT NULL DEFAULT 0,
			code_issued_at DATETIME NOT NULL,
			UNIQUE KEY uniq_booking (booking_id),
			KEY idx_status_deadline (status, deadline)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,

		`CREATE TABLE IF NOT EXISTS verification_attempts (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			booking_id BIGINT NOT NULL,
			role VARCHAR(20) NOT NULL,
			code_given VARCHAR(10) NOT NULL,
			success TINYINT(1) NOT NULL,
			distance_m DOUBLE NOT NULL DEFAULT 0,
			location_overridden TINYINT(1) NOT NULL DEFAULT 0,
			reason VARCHAR(255) NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			KEY idx_booking (booking_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,

		`CREATE TABLE IF NOT EXISTS booking_requests (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			client_id BIGINT NOT NULL,
			companion_id BIGINT NOT NULL,
			message VARCHAR(1000) NOT NULL DEFAULT '',
			proposed_start DATETIME NULL,
			proposed_end DATETIME NULL,
			total_amount BIGINT NOT NULL,
			payment_hold_ref VARCHAR(100) NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			valid_until DATETIME NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			KEY idx_companion_status (companion_id, status),
			KEY idx_status_valid (status, valid_until)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,

		`CREATE TABLE IF NOT EXISTS pending_transfers (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			booking_id BIGINT NOT NULL,
			companion_id BIGINT NOT NULL,
			gross_amount BIGINT NOT NULL,
			fee_amount BIGINT NOT NULL,
			net_amount BIGINT NOT NULL,
			reason VARCHAR(500) NOT NULL DEFAULT '',
			settled_at DATETIME NULL,
			transfer_ref VARCHAR(100) NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY uniq_booking (booking_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,
	}

	for _, ddl := range stmts {
		if _, err := db.Exec(ddl); err != nil {
			return err
		}
	}
	return nil
}
