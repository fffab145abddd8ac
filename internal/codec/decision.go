package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const DecisionPayloadSize = 64

// EncodeDecision serializes a risk decision into a fixed-size payload.
func EncodeDecision(dst []byte, decision schema.RiskDecision) []byte {
	if cap(dst) < DecisionPayloadSize {
		dst = make([]byte, DecisionPayloadSize)
	} else {
		dst = dst[:DecisionPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], decision.OrderID)
	binary.LittleEndian.PutUint32(dst[8:12], uint32(decision.AccountID))
	binary.LittleEndian.PutUint32(dst[12:16], uint32(decision.InstrumentID))
	binary.LittleEndian.PutUint16(dst[16:18], uint16(decision.Action))
	binary.LittleEndian.PutUint16(dst[18:20], uint16(decision.Reason))
	binary.LittleEndian.PutUint16(dst[20:22], decision.Flags)
	binary.LittleEndian.PutUint16(dst[22:24], decision.Reserved)
	binary.LittleEndian.PutUint64(dst[24:32], uint64(decision.Qty))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(decision.Price))
	binary.LittleEndian.PutUint64(dst[40:48], uint64(decision.NetPosition))
	binary.LittleEndian.PutUint64(dst[48:56], uint64(decision.UsedCredit))
	binary.LittleEndian.PutUint64(dst[56:64], uint64(decision.TsDecision))

	return dst
}

// DecodeDecision parses a fixed-size risk decision payload.
func DecodeDecision(src []byte) (schema.RiskDecision, bool) {
	if len(src) < DecisionPayloadSize {
		return schema.RiskDecision{}, false
	}
	return schema.RiskDecision{
		OrderID:      binary.LittleEndian.Uint64(src[0:8]),
		AccountID:    schema.AccountID(binary.LittleEndian.Uint32(src[8:12])),
		InstrumentID: schema.InstrumentID(binary.LittleEndian.Uint32(src[12:16])),
		Action:       schema.RiskAction(binary.LittleEndian.Uint16(src[16:18])),
		Reason:       schema.RiskReason(binary.LittleEndian.Uint16(src[18:20])),
		Flags:        binary.LittleEndian.Uint16(src[20:22]),
		Reserved:     binary.LittleEndian.Uint16(src[22:24]),
		Qty:          schema.Quantity(int64(binary.LittleEndian.Uint64(src[24:32]))),
		Price:        schema.Price(int64(binary.LittleEndian.Uint64(src[32:40]))),
		NetPosition:  schema.Quantity(int64(binary.LittleEndian.Uint64(src[40:48]))),
		UsedCredit:   schema.Credit(int64(binary.LittleEndian.Uint64(src[48:56]))),
		TsDecision:   int64(binary.LittleEndian.Uint64(src[56:64])),
	}, true
}
