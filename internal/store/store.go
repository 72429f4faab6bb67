// Package store is the embedded persistence layer shared by every gateway
// connection: daily usage counters, customer profiles maintained by the
// companion consumer app, and the validation/AVT audit trails.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// busyTimeoutMS bounds the wait on a locked database so concurrent
// connection handlers contend instead of failing immediately.
const busyTimeoutMS = 10000

var ErrProfileNotFound = errors.New("store: no matching customer profile")

const schema = `
CREATE TABLE IF NOT EXISTS daily_transaction_counts (
	loyalty_id       TEXT NOT NULL,
	transaction_date TEXT NOT NULL,
	count            INTEGER NOT NULL DEFAULT 1,
	updated_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (loyalty_id, transaction_date)
);

CREATE TABLE IF NOT EXISTS customer_profiles (
	loyalty_id         TEXT PRIMARY KEY,
	cid_customer_id    TEXT,
	customer_name      TEXT,
	phone_number       TEXT,
	rtn_qr_code        TEXT,
	driver_license     TEXT,
	eaiv_verified      INTEGER,
	avt_verified       INTEGER,
	last_eaiv_verified TIMESTAMP,
	last_avt_verified  TIMESTAMP,
	updated_at         TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_profiles_phone ON customer_profiles(phone_number);
CREATE INDEX IF NOT EXISTS idx_profiles_qr ON customer_profiles(rtn_qr_code);
CREATE INDEX IF NOT EXISTS idx_profiles_dl ON customer_profiles(driver_license);

CREATE TABLE IF NOT EXISTS loyalty_validation_log (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	loyalty_id            TEXT NOT NULL,
	store_id              TEXT,
	valid                 INTEGER NOT NULL,
	eligible_for_tier3    INTEGER NOT NULL,
	eligible_for_cid_fund INTEGER NOT NULL,
	is_manager_card       INTEGER NOT NULL,
	daily_count           INTEGER NOT NULL,
	reason                TEXT,
	created_at            TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS avt_transactions (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	transaction_id  TEXT NOT NULL,
	store_id        TEXT NOT NULL,
	loyalty_id      TEXT,
	cid_customer_id TEXT,
	avt_performed   INTEGER NOT NULL,
	avt_method      TEXT NOT NULL,
	avt_timestamp   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	cashier_id      TEXT,
	eaiv_verified   INTEGER
);
`

// CustomerProfile is one row owned by the companion app. The gateway reads
// eaiv_verified/cid_customer_id and writes only the AVT columns; it never
// creates or deletes rows.
type CustomerProfile struct {
	LoyaltyID        string         `db:"loyalty_id"`
	CIDCustomerID    sql.NullString `db:"cid_customer_id"`
	CustomerName     sql.NullString `db:"customer_name"`
	PhoneNumber      sql.NullString `db:"phone_number"`
	QRCode           sql.NullString `db:"rtn_qr_code"`
	DriverLicense    sql.NullString `db:"driver_license"`
	EAIVVerified     sql.NullBool   `db:"eaiv_verified"`
	AVTVerified      sql.NullBool   `db:"avt_verified"`
	LastEAIVVerified sql.NullTime   `db:"last_eaiv_verified"`
	LastAVTVerified  sql.NullTime   `db:"last_avt_verified"`
}

// ValidationLogEntry is one append-only audit row per validation attempt.
type ValidationLogEntry struct {
	LoyaltyID          string
	StoreID            string
	Valid              bool
	EligibleForTier3   bool
	EligibleForCIDFund bool
	IsManagerCard      bool
	DailyCount         int
	Reason             string
}

// AVTTransactionRecord is one append-only compliance row per age-gating
// attempt where age was verified.
type AVTTransactionRecord struct {
	TransactionID string
	StoreID       string
	LoyaltyID     string
	CIDCustomerID string
	AVTPerformed  bool
	AVTMethod     string
	CashierID     string
	EAIVVerified  bool
}

// Store wraps the embedded database. Safe for use from concurrent
// connection handlers: each operation runs its own short-lived transaction.
type Store struct {
	db  *sqlx.DB
	log zerolog.Logger
}

// Open opens (creating if needed) the single-file database and ensures the
// schema exists.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_fk=1", path, busyTimeoutMS)
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store schema: %w", err)
	}
	return &Store{db: db, log: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DayKey renders the calendar-date key used by the daily counter table.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// IncrementDailyCount bumps the per-identifier counter for the given day and
// returns the post-increment value. The upsert and the read-back share one
// transaction so two concurrent submissions of the same identifier can never
// both observe a stale pre-increment count.
func (s *Store) IncrementDailyCount(identifier string, day time.Time) (int, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return 0, fmt.Errorf("daily count begin: %w", err)
	}
	dayKey := DayKey(day)
	_, err = tx.Exec(`
		INSERT INTO daily_transaction_counts (loyalty_id, transaction_date, count)
		VALUES (?, ?, 1)
		ON CONFLICT(loyalty_id, transaction_date)
		DO UPDATE SET count = count + 1, updated_at = CURRENT_TIMESTAMP`,
		identifier, dayKey)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("daily count upsert: %w", err)
	}
	var count int
	err = tx.Get(&count, `
		SELECT count FROM daily_transaction_counts
		WHERE loyalty_id = ? AND transaction_date = ?`,
		identifier, dayKey)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("daily count read: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("daily count commit: %w", err)
	}
	return count, nil
}

// DailyCount reads the counter for an identifier/day without incrementing;
// zero when no row exists.
func (s *Store) DailyCount(identifier string, day time.Time) (int, error) {
	var count int
	err := s.db.Get(&count, `
		SELECT count FROM daily_transaction_counts
		WHERE loyalty_id = ? AND transaction_date = ?`,
		identifier, DayKey(day))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("daily count get: %w", err)
	}
	return count, nil
}

// PruneDailyCounts removes counter rows with a date strictly older than the
// cutoff. Invoked at process start to bound table growth.
func (s *Store) PruneDailyCounts(olderThan time.Time) (int64, error) {
	res, err := s.db.Exec(`
		DELETE FROM daily_transaction_counts WHERE transaction_date < ?`,
		DayKey(olderThan))
	if err != nil {
		return 0, fmt.Errorf("daily count prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	s.log.Info().Int64("rows", n).Str("cutoff", DayKey(olderThan)).Msg("pruned old daily transaction counts")
	return n, nil
}

// LookupProfileByIdentifier finds the profile whose phone, QR code, or
// driver-license column matches the presented identifier. At most one row is
// expected; the first match wins.
func (s *Store) LookupProfileByIdentifier(identifier string) (*CustomerProfile, error) {
	var p CustomerProfile
	err := s.db.Get(&p, `
		SELECT loyalty_id, cid_customer_id, customer_name, phone_number,
		       rtn_qr_code, driver_license, eaiv_verified, avt_verified,
		       last_eaiv_verified, last_avt_verified
		FROM customer_profiles
		WHERE phone_number = ? OR rtn_qr_code = ? OR driver_license = ?
		LIMIT 1`,
		identifier, identifier, identifier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("profile lookup: %w", err)
	}
	return &p, nil
}

// MarkProfileAVTVerified records an in-person confirmation against the
// matched profile. Only the AVT columns are touched; profile lifecycle
// belongs to the companion app.
func (s *Store) MarkProfileAVTVerified(identifier string) (int64, error) {
	res, err := s.db.Exec(`
		UPDATE customer_profiles
		SET avt_verified = 1, last_avt_verified = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE phone_number = ? OR rtn_qr_code = ? OR driver_license = ?`,
		identifier, identifier, identifier)
	if err != nil {
		return 0, fmt.Errorf("profile avt update: %w", err)
	}
	return res.RowsAffected()
}

// AppendValidationLog inserts one audit row for a validation attempt.
func (s *Store) AppendValidationLog(e ValidationLogEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO loyalty_validation_log
			(loyalty_id, store_id, valid, eligible_for_tier3, eligible_for_cid_fund,
			 is_manager_card, daily_count, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.LoyaltyID, e.StoreID, boolToInt(e.Valid), boolToInt(e.EligibleForTier3),
		boolToInt(e.EligibleForCIDFund), boolToInt(e.IsManagerCard), e.DailyCount, e.Reason)
	if err != nil {
		return fmt.Errorf("validation log insert: %w", err)
	}
	return nil
}

// AppendAVTTransaction inserts one compliance audit row.
func (s *Store) AppendAVTTransaction(rec AVTTransactionRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO avt_transactions
			(transaction_id, store_id, loyalty_id, cid_customer_id,
			 avt_performed, avt_method, cashier_id, eaiv_verified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TransactionID, rec.StoreID, rec.LoyaltyID, nullIfEmpty(rec.CIDCustomerID),
		boolToInt(rec.AVTPerformed), rec.AVTMethod, nullIfEmpty(rec.CashierID),
		boolToInt(rec.EAIVVerified))
	if err != nil {
		return fmt.Errorf("avt transaction insert: %w", err)
	}
	return nil
}

// ValidationLogCount reports audit rows for one identifier. Used by
// diagnostics and tests.
func (s *Store) ValidationLogCount(identifier string) (int, error) {
	var n int
	if err := s.db.Get(&n, `SELECT COUNT(*) FROM loyalty_validation_log WHERE loyalty_id = ?`, identifier); err != nil {
		return 0, err
	}
	return n, nil
}

// AVTTransactionCount reports compliance rows for one transaction id.
func (s *Store) AVTTransactionCount(transactionID string) (int, error) {
	var n int
	if err := s.db.Get(&n, `SELECT COUNT(*) FROM avt_transactions WHERE transaction_id = ?`, transactionID); err != nil {
		return 0, err
	}
	return n, nil
}

// SeedProfile inserts a profile row directly. Test and tooling helper: in
// production the companion app owns this table.
func (s *Store) SeedProfile(p CustomerProfile) error {
	_, err := s.db.NamedExec(`
		INSERT INTO customer_profiles
			(loyalty_id, cid_customer_id, customer_name, phone_number,
			 rtn_qr_code, driver_license, eaiv_verified, avt_verified)
		VALUES (:loyalty_id, :cid_customer_id, :customer_name, :phone_number,
			 :rtn_qr_code, :driver_license, :eaiv_verified, :avt_verified)`, p)
	if err != nil {
		return fmt.Errorf("profile seed: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
