package rules

import (
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rtnapps/loyalty-gateway/internal/protocol/posxml"
	"github.com/rtnapps/loyalty-gateway/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "loyalty.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestValidateFormats(t *testing.T) {
	v := NewValidator(openTestStore(t), 0, zerolog.Nop())
	cases := []struct {
		name string
		id   string
		want IdentifierFormat
	}{
		{"phone 10 digits", "5551239876", FormatPhoneNumber},
		{"phone 12 digits", "155512398760", FormatPhoneNumber},
		{"qr code", QRCodeBaseURL + "dGVzdEN1c3RvbWVy", FormatQRCode},
		{"driver license", "D12345678", FormatDriverLicense},
	}
	for _, tc := range cases {
		res := v.Validate(tc.id, "1421")
		if !res.Valid {
			t.Fatalf("%s: expected valid, reason=%q", tc.name, res.Reason)
		}
		if res.Format != tc.want {
			t.Fatalf("%s: format got %v want %v", tc.name, res.Format, tc.want)
		}
		if !res.EligibleForTier3 || !res.EligibleForCIDFund {
			t.Fatalf("%s: first use should be fully eligible: %+v", tc.name, res)
		}
	}
}

func TestValidateRejectsBadInput(t *testing.T) {
	v := NewValidator(openTestStore(t), 0, zerolog.Nop())
	cases := []struct {
		name   string
		id     string
		reason string
	}{
		{"empty", "", "LoyaltyID is missing"},
		{"whitespace", "   ", "LoyaltyID is missing"},
		{"too short for anything", "12345", "format unrecognized"},
		{"nine digits", "123456789", "format unrecognized"},
		{"qr missing param", QRCodeBaseURL, "missing encoded parameter"},
		{"qr bad charset", QRCodeBaseURL + "not base64!", "invalid characters"},
		{"qr too long", QRCodeBaseURL + strings.Repeat("A", 501), "out of expected range"},
		{"punctuation", "555-123-9876", "format unrecognized"},
	}
	for _, tc := range cases {
		res := v.Validate(tc.id, "1421")
		if res.Valid {
			t.Fatalf("%s: expected invalid", tc.name)
		}
		if !strings.Contains(res.Reason, tc.reason) {
			t.Fatalf("%s: reason %q does not contain %q", tc.name, res.Reason, tc.reason)
		}
	}
}

func TestValidateTrimsIdentifier(t *testing.T) {
	v := NewValidator(openTestStore(t), 0, zerolog.Nop())
	res := v.Validate("  5551239876  ", "1421")
	if !res.Valid || res.Format != FormatPhoneNumber {
		t.Fatalf("trimmed identifier should validate: %+v", res)
	}
}

func TestValidateManagerCardAtSixthUse(t *testing.T) {
	st := openTestStore(t)
	v := NewValidator(st, 5, zerolog.Nop())
	var res ValidationResult
	for i := 0; i < 6; i++ {
		res = v.Validate("5551239876", "1421")
	}
	if !res.IsManagerCard {
		t.Fatalf("sixth use should flag manager card: %+v", res)
	}
	if !res.Valid || !res.EligibleForTier3 {
		t.Fatalf("manager card keeps base eligibility: %+v", res)
	}
	if res.EligibleForCIDFund {
		t.Fatalf("manager card must lose fund eligibility")
	}
	if res.DailyCount != 6 {
		t.Fatalf("daily count: got %d want 6", res.DailyCount)
	}
	if !strings.Contains(res.Reason, "Manager/store card detected: 6 transactions today") {
		t.Fatalf("reason: %q", res.Reason)
	}
	if n, _ := st.ValidationLogCount("5551239876"); n != 6 {
		t.Fatalf("audit rows: got %d want 6", n)
	}
}

func TestValidateFifthUseStillEligible(t *testing.T) {
	v := NewValidator(openTestStore(t), 5, zerolog.Nop())
	var res ValidationResult
	for i := 0; i < 5; i++ {
		res = v.Validate("5551239876", "1421")
	}
	if res.IsManagerCard || !res.EligibleForCIDFund {
		t.Fatalf("fifth use is within cap: %+v", res)
	}
}

func TestValidateInvalidIdentifierSkipsAudit(t *testing.T) {
	st := openTestStore(t)
	v := NewValidator(st, 5, zerolog.Nop())
	v.Validate("bad!", "1421")
	if n, _ := st.ValidationLogCount("bad!"); n != 0 {
		t.Fatalf("format rejections must not reach the audit log, got %d rows", n)
	}
}

func TestValidateFailsClosedWhenStoreUnavailable(t *testing.T) {
	st := openTestStore(t)
	v := NewValidator(st, 5, zerolog.Nop())
	st.Close()
	res := v.Validate("5551239876", "1421")
	if res.Valid || res.EligibleForTier3 || res.EligibleForCIDFund {
		t.Fatalf("store failure must not grant eligibility: %+v", res)
	}
	if !strings.Contains(res.Reason, "validation unavailable") {
		t.Fatalf("reason: %q", res.Reason)
	}
}

func TestCIDCustomerID(t *testing.T) {
	if got := CIDCustomerID("5551239876", FormatPhoneNumber); got != "5551239876" {
		t.Fatalf("phone cid: %q", got)
	}
	qr := QRCodeBaseURL + "dGVzdA=="
	first := CIDCustomerID(qr, FormatQRCode)
	if !strings.HasPrefix(first, "CID_") || len(first) != 20 {
		t.Fatalf("qr cid shape: %q", first)
	}
	if second := CIDCustomerID(qr, FormatQRCode); second != first {
		t.Fatalf("qr cid must be deterministic: %q vs %q", first, second)
	}
}

func seedVerifiedProfile(t *testing.T, st *store.Store, phone string) {
	t.Helper()
	if err := st.SeedProfile(store.CustomerProfile{
		LoyaltyID:     phone,
		CIDCustomerID: sql.NullString{String: "CID_ABC", Valid: true},
		PhoneNumber:   sql.NullString{String: phone, Valid: true},
		EAIVVerified:  sql.NullBool{Bool: true, Valid: true},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestAgeGateVerifiedCustomer(t *testing.T) {
	st := openTestStore(t)
	seedVerifiedProfile(t, st, "5551239876")
	g := NewAgeGate(st, zerolog.Nop())

	res := g.Confirm(AgeGateInput{
		LoyaltyID:     "5551239876",
		StoreID:       "1421",
		TransactionID: "TX-9001",
		CashierID:     "88",
	})
	if !res.AgeVerified || !res.EAIVVerified {
		t.Fatalf("verified profile should pass: %+v", res)
	}
	if !res.EligibleForTier3 || !res.EligibleForEAIVIncentive {
		t.Fatalf("eligibility: %+v", res)
	}
	if res.CIDCustomerID != "CID_ABC" {
		t.Fatalf("cid: %q", res.CIDCustomerID)
	}
	if n, _ := st.AVTTransactionCount("TX-9001"); n != 1 {
		t.Fatalf("avt audit rows: got %d want 1", n)
	}
	p, err := st.LookupProfileByIdentifier("5551239876")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !p.AVTVerified.Valid || !p.AVTVerified.Bool {
		t.Fatalf("profile avt stamp missing")
	}
}

func TestAgeGateUnknownCustomerFailsClosed(t *testing.T) {
	st := openTestStore(t)
	g := NewAgeGate(st, zerolog.Nop())
	res := g.Confirm(AgeGateInput{LoyaltyID: "5551239876", StoreID: "1421", TransactionID: "TX-1"})
	if res.AgeVerified || res.EligibleForTier3 {
		t.Fatalf("unknown customer must fail closed: %+v", res)
	}
	if n, _ := st.AVTTransactionCount("TX-1"); n != 0 {
		t.Fatalf("no audit row expected for failed gate, got %d", n)
	}
}

func TestAgeGateUnverifiedProfile(t *testing.T) {
	st := openTestStore(t)
	if err := st.SeedProfile(store.CustomerProfile{
		LoyaltyID:    "5551239876",
		PhoneNumber:  sql.NullString{String: "5551239876", Valid: true},
		EAIVVerified: sql.NullBool{Bool: false, Valid: true},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	g := NewAgeGate(st, zerolog.Nop())
	res := g.Confirm(AgeGateInput{LoyaltyID: "5551239876"})
	if res.AgeVerified {
		t.Fatalf("unverified profile must not pass: %+v", res)
	}
	if !strings.Contains(res.Reason, "Age not verified") {
		t.Fatalf("reason: %q", res.Reason)
	}
}

func TestAgeGateMissingIdentifier(t *testing.T) {
	g := NewAgeGate(openTestStore(t), zerolog.Nop())
	res := g.Confirm(AgeGateInput{})
	if res.AgeVerified || res.EligibleForTier3 {
		t.Fatalf("no identifier means no verification: %+v", res)
	}
}

func TestAgeGateSkipsAuditWithoutTransactionContext(t *testing.T) {
	st := openTestStore(t)
	seedVerifiedProfile(t, st, "5551239876")
	g := NewAgeGate(st, zerolog.Nop())
	res := g.Confirm(AgeGateInput{LoyaltyID: "5551239876"})
	if !res.AgeVerified {
		t.Fatalf("expected verified: %+v", res)
	}
	if n, _ := st.AVTTransactionCount(""); n != 0 {
		t.Fatalf("audit requires transaction and store ids, got %d rows", n)
	}
	p, _ := st.LookupProfileByIdentifier("5551239876")
	if !p.AVTVerified.Valid || !p.AVTVerified.Bool {
		t.Fatalf("profile stamp still applies without transaction context")
	}
}

const planRequest = `<GetRewardsRequest>
  <RequestHeader>
    <POSSequenceID>10</POSSequenceID>
    <LoyaltySequenceID>abc-12345</LoyaltySequenceID>
  </RequestHeader>
  <TransactionDetailGroup>
    <TransactionLine>
      <LineNumber>3</LineNumber>
      <ItemLine><Description>SODA</Description></ItemLine>
    </TransactionLine>
  </TransactionDetailGroup>
</GetRewardsRequest>`

func TestPlanFreshReward(t *testing.T) {
	req := posxml.Classify(planRequest)
	plan := NewPlanner("").Plan(req, true)
	if len(plan.Removes) != 0 {
		t.Fatalf("no existing rewards to remove: %v", plan.Removes)
	}
	if len(plan.Adds) != 1 {
		t.Fatalf("adds: got %d want 1", len(plan.Adds))
	}
	add := plan.Adds[0]
	if add.RewardID != "3-1-B2_S150" {
		t.Fatalf("reward id: %q", add.RewardID)
	}
	if add.TargetLine != "3" || add.Value != "0.97" || add.DiscountMethod != "amountOff" || !add.Instant {
		t.Fatalf("add shape: %+v", add)
	}
	if add.ShortDesc != "RTN LOYALTY REWARD" || add.LongDesc != "RTN LOYALTY REWARD" {
		t.Fatalf("descriptions: %+v", add)
	}
}

func TestPlanResendRemovesAndReusesID(t *testing.T) {
	raw := `<GetRewardsRequest>
  <RequestHeader><LoyaltySequenceID>xyz_98765</LoyaltySequenceID></RequestHeader>
  <TransactionDetailGroup>
    <TransactionLine><LineNumber>1</LineNumber><ItemLine><Description>SODA</Description></ItemLine></TransactionLine>
  </TransactionDetailGroup>
  <Promotion status="normal">
    <LoyaltyRewardID>1-1-B2_S150</LoyaltyRewardID>
    <PromotionReason>loyaltyOffer</PromotionReason>
  </Promotion>
</GetRewardsRequest>`
	plan := NewPlanner("").Plan(posxml.Classify(raw), true)
	if len(plan.Removes) != 1 || plan.Removes[0] != "1-1-B2_S150" {
		t.Fatalf("removes: %v", plan.Removes)
	}
	if len(plan.Adds) != 1 || plan.Adds[0].RewardID != "1-1-B2_S150" {
		t.Fatalf("reused id: %+v", plan.Adds)
	}
}

func TestPlanNoRemovalWithoutSequenceID(t *testing.T) {
	raw := `<GetRewardsRequest>
  <Promotion status="normal">
    <LoyaltyRewardID>1-1-B2_S150</LoyaltyRewardID>
    <PromotionReason>loyaltyOffer</PromotionReason>
  </Promotion>
</GetRewardsRequest>`
	plan := NewPlanner("").Plan(posxml.Classify(raw), true)
	if len(plan.Removes) != 0 {
		t.Fatalf("removal requires the echoed sequence id: %v", plan.Removes)
	}
}

func TestPlanIneligibleStillRemoves(t *testing.T) {
	raw := `<GetRewardsRequest>
  <RequestHeader><LoyaltySequenceID>abc-12345</LoyaltySequenceID></RequestHeader>
  <Promotion status="normal">
    <LoyaltyRewardID>1-1-B2_S150</LoyaltyRewardID>
    <PromotionReason>loyaltyOffer</PromotionReason>
  </Promotion>
</GetRewardsRequest>`
	plan := NewPlanner("").Plan(posxml.Classify(raw), false)
	if len(plan.Removes) != 1 {
		t.Fatalf("removal is independent of eligibility: %v", plan.Removes)
	}
	if len(plan.Adds) != 0 {
		t.Fatalf("ineligible transactions get no adds: %+v", plan.Adds)
	}
}

func TestPlanNoLinesNoAdds(t *testing.T) {
	raw := `<GetRewardsRequest><LoyaltyID>5551239876</LoyaltyID></GetRewardsRequest>`
	plan := NewPlanner("").Plan(posxml.Classify(raw), true)
	if len(plan.Adds) != 0 {
		t.Fatalf("no item lines means no reward: %+v", plan.Adds)
	}
}

func TestPlanConfiguredValue(t *testing.T) {
	plan := NewPlanner("1.50").Plan(posxml.Classify(planRequest), true)
	if len(plan.Adds) != 1 || plan.Adds[0].Value != "1.50" {
		t.Fatalf("configured value: %+v", plan.Adds)
	}
}

func TestDetectTobacco(t *testing.T) {
	cases := []struct {
		name string
		line posxml.ItemLine
		want bool
	}{
		{"product code", posxml.ItemLine{PaymentSystemsProductCode: "400"}, true},
		{"merch code", posxml.ItemLine{MerchandiseCode: "7"}, true},
		{"brand keyword", posxml.ItemLine{Description: "MARLBORO GOLD"}, true},
		{"category keyword", posxml.ItemLine{Description: "Smokeless pouch"}, true},
		{"clean", posxml.ItemLine{Description: "SODA 20OZ", MerchandiseCode: "12"}, false},
	}
	for _, tc := range cases {
		got, indicators := DetectTobacco([]posxml.ItemLine{tc.line})
		if got != tc.want {
			t.Fatalf("%s: got %v want %v (%v)", tc.name, got, tc.want, indicators)
		}
	}
}
