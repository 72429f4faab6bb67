package rules

import (
	"fmt"
	"strings"

	"github.com/rtnapps/loyalty-gateway/internal/protocol/posxml"
)

// Reward plan defaults matching the deployed promotion.
const (
	DefaultRewardValue = "0.97"
	rewardDescription  = "RTN LOYALTY REWARD"
	rewardIDSuffix     = "-1-B2_S150"
	discountAmountOff  = "amountOff"
	rewardLimitType    = "quantity"
	rewardLimitValue   = "1"
)

var tobaccoKeywords = []string{
	"marlboro", "cigarette", "tobacco", "cigar", "smoke", "newport", "camel", "winston",
}

// RewardPlan is what the response builder renders: removals first, then adds.
type RewardPlan struct {
	Removes []string
	Adds    []posxml.AddRewardAction
}

// Planner derives the reward plan for an eligible transaction. Value is the
// configured discount amount rendered verbatim on the wire.
type Planner struct {
	Value string
}

func NewPlanner(value string) *Planner {
	if value == "" {
		value = DefaultRewardValue
	}
	return &Planner{Value: value}
}

// Plan computes the reward actions for a rewards request. Rewards already on
// the transaction are re-issued as remove-then-add when the terminal resends
// with the loyalty sequence id from our earlier response; otherwise a fresh
// reward id is minted off the first priced line. No adds when the
// transaction has no item lines or eligibility failed upstream.
func (p *Planner) Plan(req posxml.Request, tier3Eligible bool) RewardPlan {
	var plan RewardPlan

	existing := req.ExistingLoyaltyRewardIDs()
	if len(existing) > 0 && req.LoyaltySequenceID != "" {
		plan.Removes = existing
	}

	if !tier3Eligible {
		return plan
	}
	lines := req.TransactionLines()
	if len(lines) == 0 {
		return plan
	}

	line := lines[0].LineNumber
	if line == "" {
		line = "1"
	}
	rewardID := line + rewardIDSuffix
	if len(existing) > 0 {
		rewardID = existing[0]
	}

	plan.Adds = []posxml.AddRewardAction{{
		RewardID:       rewardID,
		Value:          p.Value,
		TargetLine:     line,
		DiscountMethod: discountAmountOff,
		Instant:        true,
		LimitType:      rewardLimitType,
		LimitValue:     rewardLimitValue,
		ShortDesc:      rewardDescription,
		LongDesc:       rewardDescription,
	}}
	return plan
}

// DetectTobacco scans item lines for age-restricted product markers: the
// payment-systems product code 400, merchandise code 7, or a known brand or
// category keyword in the description. Returns the indicators that fired.
func DetectTobacco(lines []posxml.ItemLine) (bool, []string) {
	var indicators []string
	for _, line := range lines {
		if line.PaymentSystemsProductCode == "400" {
			indicators = append(indicators, fmt.Sprintf("PaymentSystemsProductCode=%s", line.PaymentSystemsProductCode))
		}
		if line.MerchandiseCode == "7" {
			indicators = append(indicators, fmt.Sprintf("MerchandiseCode=%s", line.MerchandiseCode))
		}
		desc := strings.ToLower(line.Description)
		for _, kw := range tobaccoKeywords {
			if strings.Contains(desc, kw) {
				indicators = append(indicators, "Description contains tobacco keyword")
				break
			}
		}
	}
	return len(indicators) > 0, indicators
}
