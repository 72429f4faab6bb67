package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

const (
	// HeaderLen is signature + action + payloadLength + payloadChecksum + headerChecksum.
	HeaderLen    = 28
	SignatureLen = 12

	// ActionDefault is the only action value observed on the wire.
	ActionDefault uint32 = 1
)

// Signature returns the fixed 12-byte frame signature "POSLOYALTY\x00\x00".
func Signature() []byte {
	return []byte{'P', 'O', 'S', 'L', 'O', 'Y', 'A', 'L', 'T', 'Y', 0, 0}
}

var (
	ErrShortFrame       = errors.New("frame: shorter than fixed header")
	ErrBadSignature     = errors.New("frame: signature mismatch")
	ErrHeaderChecksum   = errors.New("frame: header checksum mismatch")
	ErrPayloadChecksum  = errors.New("frame: payload checksum mismatch")
	ErrTruncatedPayload = errors.New("frame: payload shorter than declared length")
)

// Frame is one complete outbound wire message. The inbound POS stream is NOT
// parsed through this type: terminal request framing is unreliable, so the
// session layer resynchronizes on payload content instead (see extract).
type Frame struct {
	Action          uint32
	PayloadChecksum uint32
	HeaderChecksum  uint32
	Payload         []byte
}

// Encode builds the framed wire bytes for one response payload:
// 12-byte signature, action, payload length, CRC32(payload), then
// CRC32 over the first 24 header bytes. All integers little-endian.
func Encode(payload []byte) []byte {
	buf := make([]byte, HeaderLen+len(payload))
	copy(buf[0:SignatureLen], Signature())
	binary.LittleEndian.PutUint32(buf[12:16], ActionDefault)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(payload)))
	binary.LittleEndian.PutUint32(buf[20:24], crc32.ChecksumIEEE(payload))
	binary.LittleEndian.PutUint32(buf[24:28], crc32.ChecksumIEEE(buf[0:24]))
	copy(buf[HeaderLen:], payload)
	return buf
}

// Decode parses and verifies one framed message. Used by clients and tests
// reading gateway responses; the server inbound path never calls it.
func Decode(b []byte) (Frame, error) {
	if len(b) < HeaderLen {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(b))
	}
	if string(b[0:SignatureLen]) != string(Signature()) {
		return Frame{}, ErrBadSignature
	}
	f := Frame{
		Action:          binary.LittleEndian.Uint32(b[12:16]),
		PayloadChecksum: binary.LittleEndian.Uint32(b[20:24]),
		HeaderChecksum:  binary.LittleEndian.Uint32(b[24:28]),
	}
	if crc32.ChecksumIEEE(b[0:24]) != f.HeaderChecksum {
		return Frame{}, ErrHeaderChecksum
	}
	payloadLen := binary.LittleEndian.Uint32(b[16:20])
	if uint32(len(b)-HeaderLen) < payloadLen {
		return Frame{}, fmt.Errorf("%w: declared %d, have %d", ErrTruncatedPayload, payloadLen, len(b)-HeaderLen)
	}
	f.Payload = b[HeaderLen : HeaderLen+int(payloadLen)]
	if crc32.ChecksumIEEE(f.Payload) != f.PayloadChecksum {
		return Frame{}, ErrPayloadChecksum
	}
	return f, nil
}
