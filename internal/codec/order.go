package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const OrderPayloadSize = 48

// EncodeOrder serializes an order into a fixed-size payload.
func EncodeOrder(dst []byte, order schema.Order) []byte {
	if cap(dst) < OrderPayloadSize {
		dst = make([]byte, OrderPayloadSize)
	} else {
		dst = dst[:OrderPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], order.OrderID)
	binary.LittleEndian.PutUint32(dst[8:12], uint32(order.AccountID))
	binary.LittleEndian.PutUint32(dst[12:16], uint32(order.InstrumentID))
	binary.LittleEndian.PutUint16(dst[16:18], uint16(order.Side))
	binary.LittleEndian.PutUint16(dst[18:20], uint16(order.Type))
	binary.LittleEndian.PutUint16(dst[20:22], order.Flags)
	binary.LittleEndian.PutUint16(dst[22:24], order.Reserved)
	binary.LittleEndian.PutUint64(dst[24:32], uint64(order.Price))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(order.Qty))
	binary.LittleEndian.PutUint64(dst[40:48], uint64(order.TsSubmit))

	return dst
}

// DecodeOrder parses a fixed-size order payload.
func DecodeOrder(src []byte) (schema.Order, bool) {
	if len(src) < OrderPayloadSize {
		return schema.Order{}, false
	}
	return schema.Order{
		OrderID:      binary.LittleEndian.Uint64(src[0:8]),
		AccountID:    schema.AccountID(binary.LittleEndian.Uint32(src[8:12])),
		InstrumentID: schema.InstrumentID(binary.LittleEndian.Uint32(src[12:16])),
		Side:         schema.OrderSide(binary.LittleEndian.Uint16(src[16:18])),
		Type:         schema.OrderType(binary.LittleEndian.Uint16(src[18:20])),
		Flags:        binary.LittleEndian.Uint16(src[20:22]),
		Reserved:     binary.LittleEndian.Uint16(src[22:24]),
		Price:        schema.Price(int64(binary.LittleEndian.Uint64(src[24:32]))),
		Qty:          schema.Quantity(int64(binary.LittleEndian.Uint64(src[32:40]))),
		TsSubmit:     int64(binary.LittleEndian.Uint64(src[40:48])),
	}, true
}
