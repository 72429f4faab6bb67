package gateway

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/rtnapps/loyalty-gateway/internal/observability"
	"github.com/rtnapps/loyalty-gateway/internal/protocol/posxml"
	"github.com/rtnapps/loyalty-gateway/internal/rules"
)

// Dispatcher routes one classified request to its handler and renders the
// response payload. The bool result is false for the request types the
// terminal expects no answer to.
type Dispatcher struct {
	validator *rules.Validator
	ageGate   *rules.AgeGate
	planner   *rules.Planner

	promptForLoyalty        bool
	ageVerificationRequired bool

	log zerolog.Logger
}

func NewDispatcher(v *rules.Validator, g *rules.AgeGate, p *rules.Planner, prompt, ageRequired bool, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		validator:               v,
		ageGate:                 g,
		planner:                 p,
		promptForLoyalty:        prompt,
		ageVerificationRequired: ageRequired,
		log:                     logger,
	}
}

// Dispatch is exhaustive over the request kinds. Begin/EndCustomer are
// deliberate silence: writing anything back desynchronizes the terminal.
func (d *Dispatcher) Dispatch(req posxml.Request) (string, bool) {
	start := time.Now()
	payload, respond := d.dispatch(req)
	observability.RecordResponse(kindLabel(req.Kind), time.Since(start))
	return payload, respond
}

func (d *Dispatcher) dispatch(req posxml.Request) (string, bool) {
	switch req.Kind {
	case posxml.KindOnlineStatus:
		return posxml.OnlineStatusResponse(req.POSSequenceID, d.promptForLoyalty), true
	case posxml.KindGetRewards:
		return d.handleGetRewards(req), true
	case posxml.KindFinalizeRewards:
		return d.handleFinalize(req), true
	case posxml.KindCancelTransaction:
		d.log.Info().Str("pos_seq", req.POSSequenceID).Msg("transaction cancelled")
		return posxml.CancelResponse(req.POSSequenceID), true
	case posxml.KindBeginCustomer, posxml.KindEndCustomer:
		d.log.Debug().Str("tag", req.RootTag).Msg("no response required for request type")
		return "", false
	case posxml.KindUnparseable:
		d.log.Warn().Msg("unparseable message, answering Not Found")
		return posxml.NotFoundPayload, true
	default:
		d.log.Info().Str("tag", req.RootTag).Msg("no specific handler, sending generic ack")
		return posxml.GenericOKResponse(req.RootTag), true
	}
}

func (d *Dispatcher) handleGetRewards(req posxml.Request) string {
	loyaltyID := req.LoyaltyID()

	// The response echoes the terminal's sequence id when it sent one; a
	// fresh id is minted only on the first exchange of a transaction.
	seqID := req.LoyaltySequenceID
	if seqID == "" {
		seqID = posxml.NewLoyaltySequenceID()
	}

	validation := d.validator.Validate(loyaltyID, req.StoreLocationID)
	observability.RecordValidation(validation.Format.String(), validation.Valid, validation.IsManagerCard)
	if !validation.Valid {
		// No identifier, no benefits. Age status is unknown because the
		// gate never ran.
		return posxml.RewardsResponse(req.POSSequenceID, seqID, loyaltyID, posxml.RewardsStatus{
			AgeVerified:             posxml.StateUnknown,
			EAIVVerified:            posxml.StateUnknown,
			AgeVerificationRequired: d.ageVerificationRequired,
		}, nil, nil)
	}

	if restricted, indicators := rules.DetectTobacco(req.TransactionLines()); restricted {
		d.log.Info().Strs("indicators", indicators).Msg("age-restricted product in transaction")
	}

	signal, present := req.AVTSignal()
	age := d.ageGate.Confirm(rules.AgeGateInput{
		LoyaltyID:     loyaltyID,
		StoreID:       req.StoreLocationID,
		TransactionID: req.POSTransactionID(),
		CashierID:     req.CashierID(),
		AVTSignal:     signal,
		AVTPresent:    present,
		FallbackCID:   rules.CIDCustomerID(loyaltyID, validation.Format),
	})
	observability.RecordAgeCheck(age.AgeVerified)

	if !age.AgeVerified || !age.EligibleForTier3 {
		return posxml.RewardsResponse(req.POSSequenceID, seqID, loyaltyID, posxml.RewardsStatus{
			AgeVerified:  triState(age.AgeVerified),
			EAIVVerified: triState(age.EAIVVerified),
		}, nil, nil)
	}

	plan := d.planner.Plan(req, validation.EligibleForTier3 && age.EligibleForTier3)
	for range plan.Adds {
		observability.RecordRewardIssued()
	}
	return posxml.RewardsResponse(req.POSSequenceID, seqID, loyaltyID, posxml.RewardsStatus{
		AgeVerified:             triState(age.AgeVerified),
		EAIVVerified:            triState(age.EAIVVerified),
		AgeVerificationRequired: d.ageVerificationRequired,
	}, plan.Removes, plan.Adds)
}

// handleFinalize answers Success whenever a reward id is present. The
// offline-with-nothing-to-finalize case gets the literal Not Found body the
// terminal expects after cancelled or reward-less transactions.
func (d *Dispatcher) handleFinalize(req posxml.Request) string {
	rewardID := req.FinalizeRewardID()
	if req.OfflineFlagSet() && rewardID == "" {
		d.log.Info().Str("pos_seq", req.POSSequenceID).Msg("no rewards to finalize (offline, no reward id)")
		return posxml.NotFoundPayload
	}
	d.log.Info().Str("pos_seq", req.POSSequenceID).Str("reward_id", rewardID).Msg("rewards finalized")
	return posxml.FinalizeSuccessResponse()
}

func triState(b bool) posxml.TriState {
	if b {
		return posxml.StateYes
	}
	return posxml.StateNo
}

func kindLabel(k posxml.Kind) string {
	switch k {
	case posxml.KindOnlineStatus:
		return "online_status"
	case posxml.KindGetRewards:
		return "get_rewards"
	case posxml.KindFinalizeRewards:
		return "finalize_rewards"
	case posxml.KindCancelTransaction:
		return "cancel_transaction"
	case posxml.KindBeginCustomer:
		return "begin_customer"
	case posxml.KindEndCustomer:
		return "end_customer"
	case posxml.KindUnparseable:
		return "unparseable"
	default:
		return "unknown"
	}
}
