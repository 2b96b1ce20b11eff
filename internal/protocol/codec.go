package protocol

import (
	"encoding/json"
	"fmt"
)

type envelope struct {
	Type string `json:"type"`
}

// Encode wraps a message struct into a single flat JSON frame carrying
// the given type tag alongside the message fields.
func Encode(msgType string, msg any) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("encode %s: message must be an object: %w", msgType, err)
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage, 1)
	}
	typeTag, err := json.Marshal(msgType)
	if err != nil {
		return nil, err
	}
	fields["type"] = typeTag
	return json.Marshal(fields)
}

// Decode parses one inbound frame into its typed message. Frames whose
// type tag is not part of the protocol decode to (nil, nil) so newer
// servers can add message kinds without breaking older clients.
// Malformed frames fail closed.
func Decode(data []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("decode frame: missing type tag")
	}
	msg := newMessage(env.Type)
	if msg == nil {
		return nil, nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return msg, nil
}

func newMessage(msgType string) any {
	switch msgType {
	case TypeWelcome:
		return &Welcome{}
	case TypeSnapshot:
		return &Snapshot{}
	case TypePriceTick:
		return &PriceTick{}
	case TypeContractUpdate:
		return &ContractUpdate{}
	case TypeTradeConfirmed:
		return &TradeConfirmed{}
	case TypeVerificationHit:
		return &VerificationHit{}
	case TypeTradeResult:
		return &TradeResult{}
	case TypeBalanceUpdate:
		return &BalanceUpdate{}
	case TypePositionsSnapshot:
		return &PositionsSnapshot{}
	case TypeAck:
		return &Ack{}
	case TypeError:
		return &EngineError{}
	case TypeEngineStatus:
		return &EngineStatus{}
	case TypeHeartbeat:
		return &Heartbeat{}
	case TypeHello:
		return &Hello{}
	case TypeGetPositions:
		return &GetPositions{}
	case TypeSubscribe:
		return &Subscribe{}
	case TypePlaceTrade:
		return &PlaceTrade{}
	case TypePong:
		return &Pong{}
	}
	return nil
}
