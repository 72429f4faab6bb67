// Package rules is the two-step decision engine behind GetRewards: identifier
// validation with fraud controls, age gating against the verified-customer
// database, and the reward plan derived from both.
package rules

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rtnapps/loyalty-gateway/internal/store"
)

// DefaultDailyTransactionCap is the per-day usage ceiling; exceeding it flags
// the identifier as a shared manager/store card.
const DefaultDailyTransactionCap = 5

// QRCodeBaseURL is the fixed prefix of consumer-app QR identifiers.
const QRCodeBaseURL = "https://rtnsmart.com/rtnsmartapp/?USER_"

var (
	qrBase64Pattern  = regexp.MustCompile(`^[A-Za-z0-9+/=]+$`)
	phonePattern     = regexp.MustCompile(`^[0-9]{10,12}$`)
	driverLicPattern = regexp.MustCompile(`^[A-Za-z0-9]{6,20}$`)
)

// IdentifierFormat is the recognized shape of a presented loyalty identifier.
type IdentifierFormat int

const (
	FormatUnknown IdentifierFormat = iota
	FormatQRCode
	FormatPhoneNumber
	FormatDriverLicense
)

func (f IdentifierFormat) String() string {
	switch f {
	case FormatQRCode:
		return "qr_code"
	case FormatPhoneNumber:
		return "phone_number"
	case FormatDriverLicense:
		return "driver_license"
	default:
		return "unknown"
	}
}

// ValidationResult is the full outcome of identifier validation. A flagged
// manager card stays Valid and tier3-eligible but loses fund eligibility.
type ValidationResult struct {
	Valid              bool
	EligibleForTier3   bool
	EligibleForCIDFund bool
	IsManagerCard      bool
	DailyCount         int
	Format             IdentifierFormat
	Reason             string
}

// Validator checks identifier format and enforces the daily usage cap.
type Validator struct {
	store *store.Store
	cap   int
	log   zerolog.Logger
}

func NewValidator(st *store.Store, dailyCap int, logger zerolog.Logger) *Validator {
	if dailyCap <= 0 {
		dailyCap = DefaultDailyTransactionCap
	}
	return &Validator{store: st, cap: dailyCap, log: logger}
}

// Validate runs format detection, the daily counter, and the cap check, and
// appends one audit row for every attempt that reaches the counter. Format
// detection order matters: the QR prefix claims the identifier before the
// phone and driver-license patterns get a look, so a malformed QR code fails
// outright rather than falling through to a looser format.
func (v *Validator) Validate(loyaltyID, storeID string) ValidationResult {
	res := ValidationResult{Format: FormatUnknown}

	loyaltyID = strings.TrimSpace(loyaltyID)
	if loyaltyID == "" {
		res.Reason = "LoyaltyID is missing"
		v.log.Debug().Str("store_id", storeID).Msg(res.Reason)
		return res
	}

	switch {
	case strings.HasPrefix(loyaltyID, QRCodeBaseURL):
		res.Format = FormatQRCode
		if reason, ok := validateQRCode(loyaltyID); !ok {
			res.Reason = reason
			v.log.Debug().Str("loyalty_id", loyaltyID).Msg(res.Reason)
			return res
		}
	case phonePattern.MatchString(loyaltyID):
		res.Format = FormatPhoneNumber
	case driverLicPattern.MatchString(loyaltyID):
		res.Format = FormatDriverLicense
	default:
		res.Reason = "LoyaltyID format unrecognized (must be phone number, RTNSmart QR code, or driver license)"
		v.log.Debug().Str("loyalty_id", loyaltyID).Msg(res.Reason)
		return res
	}

	count, err := v.store.IncrementDailyCount(loyaltyID, time.Now())
	if err != nil {
		// Fail closed: without the counter the cap cannot be enforced, so no
		// eligibility is granted. The lane keeps running on the empty-rewards
		// path.
		v.log.Error().Err(err).Str("loyalty_id", loyaltyID).Msg("daily count unavailable, validation fails closed")
		res.Reason = "LoyaltyID validation unavailable (transaction counter error)"
		return res
	}
	res.DailyCount = count

	if count > v.cap {
		res.IsManagerCard = true
		res.Valid = true
		res.EligibleForTier3 = true
		res.EligibleForCIDFund = false
		res.Reason = fmt.Sprintf("Manager/store card detected: %d transactions today (exceeds cap of %d)", count, v.cap)
	} else {
		res.Valid = true
		res.EligibleForTier3 = true
		res.EligibleForCIDFund = true
		res.Reason = "LoyaltyID valid and eligible"
	}

	if err := v.store.AppendValidationLog(store.ValidationLogEntry{
		LoyaltyID:          loyaltyID,
		StoreID:            storeID,
		Valid:              res.Valid,
		EligibleForTier3:   res.EligibleForTier3,
		EligibleForCIDFund: res.EligibleForCIDFund,
		IsManagerCard:      res.IsManagerCard,
		DailyCount:         res.DailyCount,
		Reason:             res.Reason,
	}); err != nil {
		v.log.Error().Err(err).Str("loyalty_id", loyaltyID).Msg("validation audit insert failed")
	}

	v.log.Info().
		Str("loyalty_id", loyaltyID).
		Str("format", res.Format.String()).
		Int("daily_count", res.DailyCount).
		Bool("manager_card", res.IsManagerCard).
		Msg(res.Reason)
	return res
}

func validateQRCode(loyaltyID string) (reason string, ok bool) {
	encoded := loyaltyID[len(QRCodeBaseURL):]
	if encoded == "" {
		return fmt.Sprintf("LoyaltyID QR code format invalid: missing encoded parameter (full URL: '%s')", loyaltyID), false
	}
	if !qrBase64Pattern.MatchString(encoded) {
		return fmt.Sprintf("LoyaltyID QR code format invalid: encoded parameter contains invalid characters (must be Base64). Encoded param: '%s'", encoded), false
	}
	if len(encoded) > 500 {
		return fmt.Sprintf("LoyaltyID QR code format invalid: encoded parameter length %d out of expected range (1-500 chars). Encoded param: '%s'", len(encoded), encoded), false
	}
	return "", true
}

// CIDCustomerID derives the stable promotional-fund customer id for an
// identifier. Phone numbers are their own id; QR codes hash to a fixed-width
// token so the same code always maps to the same customer.
func CIDCustomerID(loyaltyID string, format IdentifierFormat) string {
	if format == FormatPhoneNumber {
		return loyaltyID
	}
	sum := sha256.Sum256([]byte(loyaltyID))
	return "CID_" + strings.ToUpper(fmt.Sprintf("%x", sum[:8]))
}
