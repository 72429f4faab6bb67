// Package extract recovers POSLOYALTY message boundaries from a raw TCP
// byte stream. Terminal request framing is not reliably parseable, so
// instead of trusting a length-prefixed header the session layer accumulates
// bytes and this package resynchronizes on recognizable top-level tags.
package extract

import (
	"bytes"
	"strings"
)

// SplitTags is the closed set of top-level element names used to locate
// message boundaries when multiple messages coalesce in one read.
var SplitTags = []string{
	"GetLoyaltyOnlineStatusRequest",
	"GetLoyaltyOnlineStatusResponse",
	"BeginCustomerRequest",
	"EndCustomerRequest",
	"BeginCustomerResponse",
	"EndCustomerResponse",
	"FinalizeRewardsRequest",
	"FinalizeRewardsResponse",
	"PromptForLoyaltyFlag",
	"GetRewardsRequest",
	"GetRewardsResponse",
	"CancelTransactionRequest",
	"CancelTransactionResponse",
}

// knownFamilies are the tag-name substrings a surviving fragment must carry
// near its start. Narrower than SplitTags: a bare PromptForLoyaltyFlag
// fragment splits cleanly but is still dropped here.
var knownFamilies = []string{
	"GetLoyaltyOnlineStatus",
	"GetRewards",
	"FinalizeRewards",
	"BeginCustomer",
	"EndCustomer",
	"CancelTransaction",
}

const (
	minFragmentLen  = 10
	familyScanChars = 100
)

// Messages scans an accumulated buffer and returns the decodable message
// strings found, in encounter order. Bytes before the first '<' are
// discarded; segments are split wherever a recognized top-level tag begins;
// fragments that are too short or carry no recognized tag name are silently
// dropped (never buffered for retry). A buffer with no '<' yields nil.
func Messages(buffer []byte) []string {
	start := bytes.IndexByte(buffer, '<')
	if start == -1 {
		return nil
	}
	clean := buffer[start:]

	var msgs []string
	for _, seg := range splitAtTagStarts(clean) {
		s := strings.TrimSpace(strings.ToValidUTF8(string(seg), "�"))
		if len(s) < minFragmentLen {
			continue
		}
		if !hasKnownFamily(s) {
			continue
		}
		msgs = append(msgs, s)
	}
	return msgs
}

// splitAtTagStarts cuts the buffer at every position that begins one of the
// recognized top-level elements, keeping the tag with the segment after it.
func splitAtTagStarts(b []byte) [][]byte {
	var cuts []int
	for i := 0; i < len(b); i++ {
		if b[i] != '<' {
			continue
		}
		if i > 0 && startsRecognizedTag(b[i:]) {
			cuts = append(cuts, i)
		}
	}

	if len(cuts) == 0 {
		return [][]byte{b}
	}
	segs := make([][]byte, 0, len(cuts)+1)
	prev := 0
	for _, cut := range cuts {
		segs = append(segs, b[prev:cut])
		prev = cut
	}
	return append(segs, b[prev:])
}

func startsRecognizedTag(b []byte) bool {
	for _, tag := range SplitTags {
		if len(b) >= len(tag)+1 && string(b[1:len(tag)+1]) == tag {
			return true
		}
	}
	return false
}

func hasKnownFamily(s string) bool {
	head := s
	if len(head) > familyScanChars {
		head = head[:familyScanChars]
	}
	for _, family := range knownFamilies {
		if strings.Contains(head, family) {
			return true
		}
	}
	return false
}
