package transport

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kayua/causalnet/internal/errs"
)

const ackPrefix = "ACK:"

// MaxDatagramSize is the largest datagram this transport will knowingly
// emit; larger payloads are still sent (UDP itself enforces the hard
// ceiling) but get a warning logged.
const MaxDatagramSize = 1024

func encodeDataFrame(msgID uint64, payload []byte) []byte {
	return []byte(strconv.FormatUint(msgID, 10) + ":" + string(payload))
}

func encodeAckFrame(msgID uint64) []byte {
	return []byte(ackPrefix + strconv.FormatUint(msgID, 10))
}

// parsedFrame is the result of decoding a raw datagram off the wire.
type parsedFrame struct {
	isAck   bool
	msgID   uint64
	payload []byte
}

// parseFrame decodes either an "ACK:<id>" frame or a "<id>:<payload>" data
// frame. Consumers must split on the FIRST colon only, since payload may
// itself contain colons (the causal layer's own framing does).
func parseFrame(data []byte) (parsedFrame, error) {
	s := string(data)
	if strings.HasPrefix(s, ackPrefix) {
		idStr := s[len(ackPrefix):]
		id, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			return parsedFrame{}, fmt.Errorf("%w: ack id %q: %v", errs.ErrMalformedFrame, idStr, err)
		}
		return parsedFrame{isAck: true, msgID: id}, nil
	}

	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return parsedFrame{}, fmt.Errorf("%w: no ':' separator in %q", errs.ErrMalformedFrame, s)
	}
	idStr := s[:idx]
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return parsedFrame{}, fmt.Errorf("%w: msg id %q: %v", errs.ErrMalformedFrame, idStr, err)
	}
	return parsedFrame{msgID: id, payload: []byte(s[idx+1:])}, nil
}
