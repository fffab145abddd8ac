package twin

import (
	"net"

	"github.com/yanun0323/errors"

	"main/internal/codec"
	"main/internal/schema"
	"main/pkg/uds"
)

// Link is one streaming connection to the hardware twin: request words go
// out, decision words come back in submission order.
type Link struct {
	conn *net.UnixConn
	req  []byte
	resp []byte
}

// Dial connects to the twin's socket.
func Dial(path string) (*Link, error) {
	client, err := uds.NewClient(path)
	if err != nil {
		return nil, err
	}
	conn, err := client.Dial()
	if err != nil {
		return nil, errors.Wrap(err, "dial hardware twin")
	}
	return &Link{conn: conn}, nil
}

// Exchange streams one evaluation request and reads back the twin's decision
// word. The raw word is returned alongside the decoded decision so callers
// can compare bit-for-bit.
func (l *Link) Exchange(order schema.Order, snap schema.NBBOSnapshot) (schema.RiskDecision, []byte, error) {
	l.req = codec.EncodeRequest(l.req, order, snap)
	if err := uds.WriteWord(l.conn, l.req); err != nil {
		return schema.RiskDecision{}, nil, errors.Wrap(err, "write request word")
	}
	word, err := uds.ReadWord(l.conn, l.resp)
	if err != nil {
		return schema.RiskDecision{}, nil, errors.Wrap(err, "read decision word")
	}
	l.resp = word
	decision, ok := codec.DecodeDecision(word)
	if !ok {
		return schema.RiskDecision{}, word, errors.Errorf("malformed decision word: %d bytes", len(word))
	}
	return decision, word, nil
}

// Close shuts the connection down.
func (l *Link) Close() error {
	if l == nil || l.conn == nil {
		return nil
	}
	return l.conn.Close()
}
