package posxml

import "math/rand"

const seqIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// NewLoyaltySequenceID generates a loyalty sequence id in one of the two
// formats the peer's parser accepts, chosen at random: three characters, a
// dash or underscore, five characters (`wS8-6y3Fq` style), or nine
// contiguous alphanumerics (`XJLLZLaPq` style). The variability is part of
// the observed contract and deliberately preserved.
func NewLoyaltySequenceID() string {
	if rand.Intn(2) == 0 {
		sep := byte('-')
		if rand.Intn(2) == 0 {
			sep = '_'
		}
		return randAlnum(3) + string(sep) + randAlnum(5)
	}
	return randAlnum(9)
}

func randAlnum(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = seqIDAlphabet[rand.Intn(len(seqIDAlphabet))]
	}
	return string(b)
}
