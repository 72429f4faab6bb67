package posxml

import (
	"encoding/xml"
	"strings"
)

// Response header constants the POS peer requires verbatim.
const (
	InterfaceVersion = "1.2"
	VendorName       = "Gilbarco"
	VendorModel      = "12.23.03.02"

	// NotFoundPayload is the literal plain-text payload sent when a message
	// cannot be parsed, or when finalize has nothing to finalize.
	NotFoundPayload = "Not Found"
)

// TriState renders the yes/no/unknown attribute values used by the
// age-status response fields.
type TriState int

const (
	StateUnknown TriState = iota
	StateNo
	StateYes
)

func (s TriState) value() string {
	switch s {
	case StateYes:
		return "yes"
	case StateNo:
		return "no"
	default:
		return "unknown"
	}
}

// AddRewardAction is one reward to apply to a transaction line.
type AddRewardAction struct {
	RewardID       string
	Value          string
	TargetLine     string
	DiscountMethod string
	Instant        bool
	LimitType      string
	LimitValue     string
	ShortDesc      string
	LongDesc       string
}

// RewardsStatus carries the age-gating flags echoed on every rewards
// response, eligible or not.
type RewardsStatus struct {
	AgeVerified             TriState
	EAIVVerified            TriState // StateUnknown omits the element
	AgeVerificationRequired bool
}

// OnlineStatusResponse renders GetLoyaltyOnlineStatusResponse with the
// prompt-for-loyalty flag.
func OnlineStatusResponse(posSeqID string, prompt bool) string {
	flag := "no"
	if prompt {
		flag = "yes"
	}
	var b strings.Builder
	b.WriteString("<GetLoyaltyOnlineStatusResponse>")
	writeResponseHeader(&b, posSeqID, "")
	b.WriteString(`<PromptForLoyaltyFlag value="` + flag + `"></PromptForLoyaltyFlag>`)
	b.WriteString("</GetLoyaltyOnlineStatusResponse>")
	return b.String()
}

// RewardsResponse renders GetRewardsResponse: header with the loyalty
// sequence id, the echoed identifier, age-status fields, and the reward
// action list (removes first, then adds).
func RewardsResponse(posSeqID, loyaltySeqID, loyaltyID string, status RewardsStatus, removes []string, adds []AddRewardAction) string {
	var b strings.Builder
	b.WriteString("<GetRewardsResponse>")
	writeResponseHeader(&b, posSeqID, loyaltySeqID)

	b.WriteString(`<LoyaltyIDValidFlag value="yes">`)
	b.WriteString(escape(loyaltyID))
	b.WriteString("</LoyaltyIDValidFlag>")

	b.WriteString(`<AgeVerified value="` + status.AgeVerified.value() + `"></AgeVerified>`)
	if status.EAIVVerified != StateUnknown {
		b.WriteString(`<EAIVVerified value="` + status.EAIVVerified.value() + `"></EAIVVerified>`)
	}
	if status.AgeVerificationRequired {
		b.WriteString(`<AgeVerificationRequired value="yes"></AgeVerificationRequired>`)
	} else {
		b.WriteString(`<AgeVerificationRequired value="no"></AgeVerificationRequired>`)
	}

	b.WriteString("<RewardActions>")
	for _, id := range removes {
		b.WriteString("<RemoveReward><LoyaltyRewardID>")
		b.WriteString(escape(id))
		b.WriteString("</LoyaltyRewardID></RemoveReward>")
	}
	for _, add := range adds {
		writeAddReward(&b, add)
	}
	b.WriteString("</RewardActions>")
	b.WriteString("</GetRewardsResponse>")
	return b.String()
}

func writeAddReward(b *strings.Builder, add AddRewardAction) {
	instant := "no"
	if add.Instant {
		instant = "yes"
	}
	b.WriteString("<AddReward>")
	b.WriteString("<LoyaltyRewardID>" + escape(add.RewardID) + "</LoyaltyRewardID>")
	b.WriteString(`<InstantRewardFlag value="` + instant + `"></InstantRewardFlag>`)
	b.WriteString("<RewardTargetLineNumber>" + escape(add.TargetLine) + "</RewardTargetLineNumber>")
	b.WriteString("<RewardDiscountMethod>" + escape(add.DiscountMethod) + "</RewardDiscountMethod>")
	b.WriteString("<RewardValue>" + escape(add.Value) + "</RewardValue>")
	b.WriteString(`<RewardLimit type="` + escape(add.LimitType) + `">` + escape(add.LimitValue) + "</RewardLimit>")
	b.WriteString("<RewardReceiptDescShort>" + escape(add.ShortDesc) + "</RewardReceiptDescShort>")
	b.WriteString("<RewardReceiptDescLong>" + escape(add.LongDesc) + "</RewardReceiptDescLong>")
	b.WriteString("</AddReward>")
}

// FinalizeSuccessResponse renders the finalize success acknowledgement.
func FinalizeSuccessResponse() string {
	return "<FinalizeRewardsResponse><ResponseHeader><Status>Success</Status></ResponseHeader></FinalizeRewardsResponse>"
}

// CancelResponse renders CancelTransactionResponse echoing the sequence id.
func CancelResponse(posSeqID string) string {
	var b strings.Builder
	b.WriteString("<CancelTransactionResponse>")
	writeCancelHeader(&b, posSeqID)
	b.WriteString("</CancelTransactionResponse>")
	return b.String()
}

// GenericOKResponse acknowledges an unrecognized request type by echoing its
// tag with a Response suffix.
func GenericOKResponse(requestTag string) string {
	tag := strings.TrimSuffix(requestTag, "Request")
	return "<" + tag + "Response><ResponseHeader><Status>OK</Status></ResponseHeader></" + tag + "Response>"
}

func writeResponseHeader(b *strings.Builder, posSeqID, loyaltySeqID string) {
	b.WriteString("<ResponseHeader>")
	b.WriteString("<POSLoyaltyInterfaceVersion>" + InterfaceVersion + "</POSLoyaltyInterfaceVersion>")
	b.WriteString("<VendorName>" + VendorName + "</VendorName>")
	b.WriteString("<VendorModelVersion>" + VendorModel + "</VendorModelVersion>")
	b.WriteString("<POSSequenceID>" + escape(posSeqID) + "</POSSequenceID>")
	b.WriteString("<LoyaltySequenceID>" + escape(loyaltySeqID) + "</LoyaltySequenceID>")
	b.WriteString("</ResponseHeader>")
}

// writeCancelHeader matches the cancel-ack shape, which carries no
// LoyaltySequenceID element.
func writeCancelHeader(b *strings.Builder, posSeqID string) {
	b.WriteString("<ResponseHeader>")
	b.WriteString("<POSLoyaltyInterfaceVersion>" + InterfaceVersion + "</POSLoyaltyInterfaceVersion>")
	b.WriteString("<VendorName>" + VendorName + "</VendorName>")
	b.WriteString("<VendorModelVersion>" + VendorModel + "</VendorModelVersion>")
	b.WriteString("<POSSequenceID>" + escape(posSeqID) + "</POSSequenceID>")
	b.WriteString("</ResponseHeader>")
}

func escape(s string) string {
	if !strings.ContainsAny(s, "<>&'\"") {
		return s
	}
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
