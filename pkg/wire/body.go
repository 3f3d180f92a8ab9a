// Package wire frames message bodies exchanged between actors.
//
// A body is a 4-byte big-endian op code, an 8-byte query id used to
// correlate a request with its effects, and an RLP-encoded payload.
// Bounced bodies carry the original body behind a 0xffffffff prefix.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

type Op uint32

// OpBounced prefixes the body of a bounced message.
const OpBounced Op = 0xffffffff

const headerLen = 12

var ErrShortBody = errors.New("body shorter than header")

type Header struct {
	Op      Op
	QueryID uint64
}

func (o Op) String() string { return fmt.Sprintf("0x%08x", uint32(o)) }

// Encode builds a body. A nil payload produces a header-only body.
func Encode(op Op, queryID uint64, payload any) ([]byte, error) {
	out := make([]byte, headerLen)
	binary.BigEndian.PutUint32(out[0:4], uint32(op))
	binary.BigEndian.PutUint64(out[4:12], queryID)
	if payload == nil {
		return out, nil
	}
	enc, err := rlp.EncodeToBytes(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", op, err)
	}
	return append(out, enc...), nil
}

// MustEncode is Encode for payload types that cannot fail to encode.
func MustEncode(op Op, queryID uint64, payload any) []byte {
	b, err := Encode(op, queryID, payload)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode splits a body into its header and raw payload.
func Decode(body []byte) (Header, []byte, error) {
	if len(body) < headerLen {
		if len(body) >= 4 {
			return Header{Op: Op(binary.BigEndian.Uint32(body[0:4]))}, nil, ErrShortBody
		}
		return Header{}, nil, ErrShortBody
	}
	h := Header{
		Op:      Op(binary.BigEndian.Uint32(body[0:4])),
		QueryID: binary.BigEndian.Uint64(body[4:12]),
	}
	return h, body[headerLen:], nil
}

// DecodePayload decodes the RLP payload into v.
func DecodePayload(raw []byte, v any) error {
	if err := rlp.DecodeBytes(raw, v); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}

// PeekOp returns the op code of a body without validating the rest.
func PeekOp(body []byte) (Op, bool) {
	if len(body) < 4 {
		return 0, false
	}
	return Op(binary.BigEndian.Uint32(body[0:4])), true
}

// Bounce wraps an original body for the return leg of a failed delivery.
func Bounce(body []byte) []byte {
	out := make([]byte, 4, 4+len(body))
	binary.BigEndian.PutUint32(out, uint32(OpBounced))
	return append(out, body...)
}

// Unbounce strips the bounce prefix.
func Unbounce(body []byte) ([]byte, bool) {
	op, ok := PeekOp(body)
	if !ok || op != OpBounced {
		return nil, false
	}
	return body[4:], true
}
