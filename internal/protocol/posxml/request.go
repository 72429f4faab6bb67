package posxml

import "strings"

// Kind classifies one inbound message by its root tag. The set is closed:
// the dispatcher switches exhaustively over these variants.
type Kind int

const (
	KindUnparseable Kind = iota
	KindOnlineStatus
	KindGetRewards
	KindFinalizeRewards
	KindCancelTransaction
	KindBeginCustomer
	KindEndCustomer
	KindUnknown
)

// Request is one decoded inbound message plus the fields every handler
// needs from the common header.
type Request struct {
	Kind    Kind
	RootTag string
	Root    *Element

	POSSequenceID     string
	LoyaltySequenceID string
	StoreLocationID   string
}

// Classify parses raw XML and routes by root tag. Tags are matched by exact
// suffix or substring: vendor stacks occasionally prefix the local name.
func Classify(raw string) Request {
	root, err := Parse(raw)
	if err != nil {
		return Request{Kind: KindUnparseable}
	}
	req := Request{
		Kind:    kindOf(root.Tag),
		RootTag: root.Tag,
		Root:    root,
	}
	if hdr := root.FindFirst("RequestHeader"); hdr != nil {
		req.POSSequenceID = hdr.FindFirst("POSSequenceID").TrimmedText()
		req.LoyaltySequenceID = hdr.FindFirst("LoyaltySequenceID").TrimmedText()
		req.StoreLocationID = hdr.FindFirst("StoreLocationID").TrimmedText()
	}
	return req
}

func kindOf(tag string) Kind {
	switch {
	case tagMatches(tag, "GetLoyaltyOnlineStatusRequest"):
		return KindOnlineStatus
	case tagMatches(tag, "GetRewardsRequest"):
		return KindGetRewards
	case tagMatches(tag, "FinalizeRewardsRequest"):
		return KindFinalizeRewards
	case tagMatches(tag, "CancelTransactionRequest"):
		return KindCancelTransaction
	case tagMatches(tag, "BeginCustomerRequest"):
		return KindBeginCustomer
	case tagMatches(tag, "EndCustomerRequest"):
		return KindEndCustomer
	default:
		return KindUnknown
	}
}

func tagMatches(tag, want string) bool {
	return strings.HasSuffix(tag, want) || strings.Contains(tag, want)
}

// LoyaltyID returns the presented loyalty identifier, trimmed.
func (r Request) LoyaltyID() string {
	return r.Root.FindFirst("LoyaltyID").TrimmedText()
}

// POSTransactionID returns the terminal's transaction id, trimmed.
func (r Request) POSTransactionID() string {
	return r.Root.FindFirst("POSTransactionID").TrimmedText()
}

// CashierID looks for the cashier/employee identity in the element names
// observed across vendor firmware revisions.
func (r Request) CashierID() string {
	for _, tag := range []string{"CashierID", "EmployeeID", "Cashier"} {
		if el := r.Root.FindFirst(tag); el != nil {
			if v := el.TrimmedText(); v != "" {
				return v
			}
			if v := strings.TrimSpace(el.Attr("value")); v != "" {
				return v
			}
		}
	}
	return ""
}

// AVTSignal returns the in-person age-confirmation signal, if the terminal
// sent one. A scanned driver-license or DOB element counts as confirmation:
// the cashier had the document in hand.
func (r Request) AVTSignal() (string, bool) {
	for _, tag := range []string{"AgeVerified", "AVT", "AgeStatus", "AgeVerification"} {
		el := r.Root.FindFirst(tag)
		if el == nil {
			continue
		}
		v := el.TrimmedText()
		if v == "" {
			v = strings.TrimSpace(el.Attr("value"))
		}
		if v == "" {
			v = strings.TrimSpace(el.Attr("status"))
		}
		if v != "" {
			return strings.ToLower(v), true
		}
	}
	for _, tag := range []string{"DriverLicense", "DriverLicenseID", "DLNumber", "DateOfBirth", "DOB", "BirthDate"} {
		if el := r.Root.FindFirst(tag); el != nil && el.TrimmedText() != "" {
			return "verified", true
		}
	}
	return "", false
}

// ItemLine is one transaction line relevant to reward targeting.
type ItemLine struct {
	LineNumber  string
	UPC         string
	Description string

	PaymentSystemsProductCode string
	MerchandiseCode           string
}

// TransactionLines collects TransactionLine/ItemLine pairs in document order.
func (r Request) TransactionLines() []ItemLine {
	var lines []ItemLine
	for _, tl := range r.Root.FindAll("TransactionLine") {
		item := tl.FindFirst("ItemLine")
		if item == nil {
			continue
		}
		line := ItemLine{
			LineNumber:                tl.FindFirst("LineNumber").TrimmedText(),
			Description:               item.FindFirst("Description").TrimmedText(),
			PaymentSystemsProductCode: item.FindFirst("PaymentSystemsProductCode").TrimmedText(),
			MerchandiseCode:           item.FindFirst("MerchandiseCode").TrimmedText(),
		}
		if code := item.FindFirst("ItemCode"); code != nil {
			line.UPC = code.FindFirst("POSCode").TrimmedText()
		}
		lines = append(lines, line)
	}
	return lines
}

// ExistingLoyaltyRewardIDs returns reward ids already applied to the
// transaction: Promotion elements in "normal" status whose PromotionReason
// names a loyalty offer.
func (r Request) ExistingLoyaltyRewardIDs() []string {
	var ids []string
	for _, promo := range r.Root.FindAll("Promotion") {
		if promo.Attr("status") != "normal" {
			continue
		}
		id := promo.FindFirst("LoyaltyRewardID").TrimmedText()
		if id == "" {
			continue
		}
		reason := promo.FindFirst("PromotionReason").TrimmedText()
		if strings.Contains(strings.ToLower(reason), "loyalty") {
			ids = append(ids, id)
		}
	}
	return ids
}

// OfflineFlagSet reports whether LoyaltyOfflineFlag carries value="yes".
func (r Request) OfflineFlagSet() bool {
	el := r.Root.FindFirst("LoyaltyOfflineFlag")
	return el != nil && strings.EqualFold(strings.TrimSpace(el.Attr("value")), "yes")
}

// FinalizeRewardID returns the LoyaltyRewardID of a finalize request, "" when
// absent or blank.
func (r Request) FinalizeRewardID() string {
	return r.Root.FindFirst("LoyaltyRewardID").TrimmedText()
}

// TenderAmount returns the settlement amount from TenderInfo, "" when absent.
func (r Request) TenderAmount() string {
	if ti := r.Root.FindFirst("TenderInfo"); ti != nil {
		return ti.FindFirst("TenderAmount").TrimmedText()
	}
	return ""
}

// FirstUPC returns the first scanned item code in the transaction.
func (r Request) FirstUPC() string {
	if code := r.Root.FindFirst("ItemCode"); code != nil {
		return code.FindFirst("POSCode").TrimmedText()
	}
	return ""
}

// FirstDescription returns the first item description in the transaction.
func (r Request) FirstDescription() string {
	return r.Root.FindFirst("Description").TrimmedText()
}
