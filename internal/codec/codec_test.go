package codec

import (
	"testing"

	"main/internal/schema"
)

func TestOrderEncodeDecodeRoundTrip(t *testing.T) {
	orig := schema.Order{
		OrderID:      987654321,
		AccountID:    7,
		InstrumentID: 3,
		Side:         schema.OrderSideSell,
		Type:         schema.OrderTypeLimit,
		Flags:        0x00a5,
		Price:        -123456,
		Qty:          500,
		TsSubmit:     1700000000123456789,
	}

	encoded := EncodeOrder(nil, orig)
	if len(encoded) != OrderPayloadSize {
		t.Fatalf("encoded order size = %d, want %d", len(encoded), OrderPayloadSize)
	}
	decoded, ok := DecodeOrder(encoded)
	if !ok || decoded != orig {
		t.Fatalf("order round-trip mismatch: got %+v want %+v", decoded, orig)
	}
}

func TestNBBOEncodeDecodeRoundTrip(t *testing.T) {
	orig := schema.NBBOSnapshot{
		InstrumentID: 3,
		Bid:          99950,
		Ask:          100050,
		TsSnapshot:   1700000000123456789,
	}

	encoded := EncodeNBBO(nil, orig)
	if len(encoded) != NBBOPayloadSize {
		t.Fatalf("encoded nbbo size = %d, want %d", len(encoded), NBBOPayloadSize)
	}
	decoded, ok := DecodeNBBO(encoded)
	if !ok || decoded != orig {
		t.Fatalf("nbbo round-trip mismatch: got %+v want %+v", decoded, orig)
	}
}

func TestDecisionEncodeDecodeRoundTrip(t *testing.T) {
	orig := schema.RiskDecision{
		OrderID:      987654321,
		AccountID:    7,
		InstrumentID: 3,
		Action:       schema.RiskActionDeny,
		Reason:       schema.ReasonPriceOutsideCollar,
		Qty:          500,
		Price:        100000,
		NetPosition:  -250,
		UsedCredit:   1234567,
		TsDecision:   1700000000123456789,
	}

	encoded := EncodeDecision(nil, orig)
	if len(encoded) != DecisionPayloadSize {
		t.Fatalf("encoded decision size = %d, want %d", len(encoded), DecisionPayloadSize)
	}
	decoded, ok := DecodeDecision(encoded)
	if !ok || decoded != orig {
		t.Fatalf("decision round-trip mismatch: got %+v want %+v", decoded, orig)
	}
}

func TestRequestEncodeDecodeRoundTrip(t *testing.T) {
	order := schema.Order{OrderID: 1, AccountID: 2, InstrumentID: 3, Side: schema.OrderSideBuy, Type: schema.OrderTypeLimit, Price: 100, Qty: 10, TsSubmit: 42}
	snap := schema.NBBOSnapshot{InstrumentID: 3, Bid: 99, Ask: 101, TsSnapshot: 41}

	encoded := EncodeRequest(nil, order, snap)
	if len(encoded) != RequestPayloadSize {
		t.Fatalf("encoded request size = %d, want %d", len(encoded), RequestPayloadSize)
	}
	gotOrder, gotSnap, ok := DecodeRequest(encoded)
	if !ok || gotOrder != order || gotSnap != snap {
		t.Fatalf("request round-trip mismatch: got %+v %+v", gotOrder, gotSnap)
	}
}

func TestDecodeShortPayloadFails(t *testing.T) {
	if _, ok := DecodeOrder(make([]byte, OrderPayloadSize-1)); ok {
		t.Fatal("short order payload decoded")
	}
	if _, ok := DecodeNBBO(make([]byte, NBBOPayloadSize-1)); ok {
		t.Fatal("short nbbo payload decoded")
	}
	if _, ok := DecodeDecision(make([]byte, DecisionPayloadSize-1)); ok {
		t.Fatal("short decision payload decoded")
	}
	if _, _, ok := DecodeRequest(make([]byte, RequestPayloadSize-1)); ok {
		t.Fatal("short request payload decoded")
	}
}

func TestEncodeReusesDestination(t *testing.T) {
	buf := make([]byte, 0, 256)
	encoded := EncodeOrder(buf, schema.Order{OrderID: 1})
	if &encoded[0] != &buf[:1][0] {
		t.Fatal("encode did not reuse the destination buffer")
	}
}
