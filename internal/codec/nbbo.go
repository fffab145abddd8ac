package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const NBBOPayloadSize = 32

// EncodeNBBO serializes an NBBO snapshot into a fixed-size payload.
func EncodeNBBO(dst []byte, snap schema.NBBOSnapshot) []byte {
	if cap(dst) < NBBOPayloadSize {
		dst = make([]byte, NBBOPayloadSize)
	} else {
		dst = dst[:NBBOPayloadSize]
	}

	binary.LittleEndian.PutUint32(dst[0:4], uint32(snap.InstrumentID))
	binary.LittleEndian.PutUint32(dst[4:8], snap.Reserved)
	binary.LittleEndian.PutUint64(dst[8:16], uint64(snap.Bid))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(snap.Ask))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(snap.TsSnapshot))

	return dst
}

// DecodeNBBO parses a fixed-size NBBO snapshot payload.
func DecodeNBBO(src []byte) (schema.NBBOSnapshot, bool) {
	if len(src) < NBBOPayloadSize {
		return schema.NBBOSnapshot{}, false
	}
	return schema.NBBOSnapshot{
		InstrumentID: schema.InstrumentID(binary.LittleEndian.Uint32(src[0:4])),
		Reserved:     binary.LittleEndian.Uint32(src[4:8]),
		Bid:          schema.Price(int64(binary.LittleEndian.Uint64(src[8:16]))),
		Ask:          schema.Price(int64(binary.LittleEndian.Uint64(src[16:24]))),
		TsSnapshot:   int64(binary.LittleEndian.Uint64(src[24:32])),
	}, true
}
