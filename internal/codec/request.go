package codec

import "main/internal/schema"

// RequestPayloadSize is the width of one evaluation request word: the order
// followed by the NBBO snapshot it is judged against.
const RequestPayloadSize = OrderPayloadSize + NBBOPayloadSize

// EncodeRequest serializes an order and its NBBO snapshot into one word.
func EncodeRequest(dst []byte, order schema.Order, snap schema.NBBOSnapshot) []byte {
	if cap(dst) < RequestPayloadSize {
		dst = make([]byte, RequestPayloadSize)
	} else {
		dst = dst[:RequestPayloadSize]
	}

	EncodeOrder(dst[:OrderPayloadSize], order)
	EncodeNBBO(dst[OrderPayloadSize:RequestPayloadSize], snap)
	return dst
}

// DecodeRequest parses one evaluation request word.
func DecodeRequest(src []byte) (schema.Order, schema.NBBOSnapshot, bool) {
	if len(src) < RequestPayloadSize {
		return schema.Order{}, schema.NBBOSnapshot{}, false
	}
	order, ok := DecodeOrder(src[:OrderPayloadSize])
	if !ok {
		return schema.Order{}, schema.NBBOSnapshot{}, false
	}
	snap, ok := DecodeNBBO(src[OrderPayloadSize:RequestPayloadSize])
	if !ok {
		return schema.Order{}, schema.NBBOSnapshot{}, false
	}
	return order, snap, true
}
