package rules

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/rtnapps/loyalty-gateway/internal/store"
)

// AVTMethodInPerson is the compliance-audit method recorded when a cashier
// confirms age at the lane.
const AVTMethodInPerson = "in_person_confirmation"

// AgeGateInput carries everything the age check needs. AVTSignal is whatever
// the terminal sent (cashier confirmation or a license scan); it is recorded
// but the gating decision rests solely on the consumer app's EAIV record.
type AgeGateInput struct {
	LoyaltyID     string
	StoreID       string
	TransactionID string
	CashierID     string
	AVTSignal     string
	AVTPresent    bool

	// FallbackCID is the derived fund customer id used when the profile has
	// none on record (see CIDCustomerID).
	FallbackCID string
}

// AgeGateResult is the outcome of the age check. AgeVerified mirrors
// EAIVVerified: electronic identity verification in the consumer app is the
// single source of age truth.
type AgeGateResult struct {
	AgeVerified              bool
	EAIVVerified             bool
	EligibleForTier3         bool
	EligibleForEAIVIncentive bool
	CIDCustomerID            string
	Reason                   string
}

// AgeGate resolves age verification from stored customer profiles.
type AgeGate struct {
	store *store.Store
	log   zerolog.Logger
}

func NewAgeGate(st *store.Store, logger zerolog.Logger) *AgeGate {
	return &AgeGate{store: st, log: logger}
}

// Confirm checks the EAIV flag on the profile matching the presented
// identifier. Unknown customers and database failures both resolve to
// not-verified: the gate fails closed. When age is verified and the request
// carries a transaction and store id, a compliance audit row is appended and
// the profile's AVT columns are stamped; both writes are best-effort and
// never change the decision.
func (g *AgeGate) Confirm(in AgeGateInput) AgeGateResult {
	var res AgeGateResult

	if in.AVTPresent {
		g.log.Debug().Str("avt_signal", in.AVTSignal).Msg("terminal sent an age signal; gating still uses the stored EAIV record")
	}

	if in.LoyaltyID == "" {
		res.Reason = "Age not verified (EAIV not verified in RTN app) - ineligible for Tier 3 incentives"
		return res
	}

	profile, err := g.store.LookupProfileByIdentifier(in.LoyaltyID)
	switch {
	case errors.Is(err, store.ErrProfileNotFound):
		g.log.Debug().Str("loyalty_id", in.LoyaltyID).Msg("no customer profile for identifier")
	case err != nil:
		g.log.Error().Err(err).Str("loyalty_id", in.LoyaltyID).Msg("profile lookup failed, treating as not verified")
	default:
		res.EAIVVerified = profile.EAIVVerified.Valid && profile.EAIVVerified.Bool
		res.AgeVerified = res.EAIVVerified
		if profile.CIDCustomerID.Valid {
			res.CIDCustomerID = profile.CIDCustomerID.String
		}
	}
	if res.CIDCustomerID == "" {
		res.CIDCustomerID = in.FallbackCID
	}

	if res.AgeVerified {
		res.EligibleForTier3 = true
		res.Reason = "Age verified (EAIV verified by RTN app) - eligible for Tier 3 incentives"
		if res.EAIVVerified {
			res.EligibleForEAIVIncentive = true
			res.Reason += "; EAIV verified (from RTN app) - eligible for EAIV-only incentives"
		}
	} else {
		res.Reason = "Age not verified (EAIV not verified in RTN app) - ineligible for Tier 3 incentives"
	}

	if res.AgeVerified && in.TransactionID != "" && in.StoreID != "" {
		if err := g.store.AppendAVTTransaction(store.AVTTransactionRecord{
			TransactionID: in.TransactionID,
			StoreID:       in.StoreID,
			LoyaltyID:     in.LoyaltyID,
			CIDCustomerID: res.CIDCustomerID,
			AVTPerformed:  true,
			AVTMethod:     AVTMethodInPerson,
			CashierID:     in.CashierID,
			EAIVVerified:  res.EAIVVerified,
		}); err != nil {
			g.log.Error().Err(err).Str("transaction_id", in.TransactionID).Msg("avt audit insert failed")
		}
	}

	if res.AgeVerified {
		if _, err := g.store.MarkProfileAVTVerified(in.LoyaltyID); err != nil {
			g.log.Error().Err(err).Str("loyalty_id", in.LoyaltyID).Msg("profile avt stamp failed")
		}
	}

	g.log.Info().
		Str("loyalty_id", in.LoyaltyID).
		Bool("age_verified", res.AgeVerified).
		Bool("eaiv_verified", res.EAIVVerified).
		Msg(res.Reason)
	return res
}
