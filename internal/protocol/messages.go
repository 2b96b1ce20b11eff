package protocol

// Message kinds carried in the "type" field of every frame.
const (
	TypeHello             = "hello"
	TypeGetPositions      = "get_positions"
	TypeSubscribe         = "subscribe"
	TypePlaceTrade        = "place_trade"
	TypePong              = "pong"
	TypeWelcome           = "welcome"
	TypeSnapshot          = "snapshot"
	TypePriceTick         = "price_tick"
	TypeContractUpdate    = "contract_update"
	TypeTradeConfirmed    = "trade_confirmed"
	TypeVerificationHit   = "verification_hit"
	TypeTradeResult       = "trade_result"
	TypeBalanceUpdate     = "balance_update"
	TypePositionsSnapshot = "positions_snapshot"
	TypeAck               = "ack"
	TypeError             = "error"
	TypeEngineStatus      = "engine_status"
	TypeHeartbeat         = "heartbeat"
)

// Contract statuses on the wire.
const (
	ContractActive  = "active"
	ContractExpired = "expired"
)

// Client -> server messages.

type Hello struct {
	Username string `json:"username,omitempty"`
}

type GetPositions struct{}

// Subscribe selects the contract stream for one grid column duration,
// in milliseconds.
type Subscribe struct {
	Timeframe int64 `json:"timeframe"`
}

type PlaceTrade struct {
	ContractID string  `json:"contractId"`
	Amount     float64 `json:"amount"`
}

type Pong struct {
	Timestamp int64 `json:"timestamp"`
}

// Server -> client messages.

type Welcome struct {
	UserID   string  `json:"userId"`
	Username string  `json:"username"`
	Balance  float64 `json:"balance"`
	Locked   float64 `json:"locked,omitempty"`
}

type PricePoint struct {
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"`
}

type Contract struct {
	ContractID       string  `json:"contractId"`
	StartTime        int64   `json:"startTime"`
	EndTime          int64   `json:"endTime"`
	LowerStrike      float64 `json:"lowerStrike"`
	UpperStrike      float64 `json:"upperStrike"`
	ReturnMultiplier float64 `json:"returnMultiplier"`
	TotalVolume      float64 `json:"totalVolume"`
	Status           string  `json:"status"`
}

// Snapshot replaces price history and contracts for one timeframe
// wholesale; it is never merged with prior state.
type Snapshot struct {
	Timeframe    int64        `json:"timeframe"`
	PriceHistory []PricePoint `json:"priceHistory"`
	Contracts    []Contract   `json:"contracts"`
}

type PriceTick struct {
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"`
}

type ContractUpdate struct {
	Timeframe int64      `json:"timeframe"`
	Contracts []Contract `json:"contracts"`
}

type TradeConfirmed struct {
	ContractID string  `json:"contractId"`
	Amount     float64 `json:"amount"`
	Timestamp  int64   `json:"timestamp"`
	TradeID    string  `json:"tradeId"`
	Balance    float64 `json:"balance"`
}

type VerificationHit struct {
	TradeID    string `json:"tradeId"`
	ContractID string `json:"contractId"`
	TriggerTs  int64  `json:"triggerTs"`
}

type TradeResult struct {
	TradeID    string  `json:"tradeId"`
	ContractID string  `json:"contractId"`
	Won        bool    `json:"won"`
	Payout     float64 `json:"payout"`
	Profit     float64 `json:"profit"`
	Balance    float64 `json:"balance"`
	Timestamp  int64   `json:"timestamp"`
}

type BalanceUpdate struct {
	Balance float64  `json:"balance"`
	Locked  *float64 `json:"locked,omitempty"`
}

type WirePosition struct {
	ContractID string  `json:"contractId"`
	TradeID    string  `json:"tradeId"`
	Amount     float64 `json:"amount"`
	Timestamp  int64   `json:"timestamp"`
	Won        *bool   `json:"won,omitempty"`
	Payout     float64 `json:"payout,omitempty"`
	Profit     float64 `json:"profit,omitempty"`
}

type PositionsSnapshot struct {
	OpenPositions []WirePosition `json:"openPositions"`
	History       []WirePosition `json:"history"`
	Balance       float64        `json:"balance"`
	Locked        float64        `json:"locked"`
}

// Ack acknowledges a client command. Context carries the contract id
// for place_trade rejections so failures can be scoped to one cell.
type Ack struct {
	Command string `json:"command"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Context string `json:"context,omitempty"`
}

type EngineError struct {
	Message string `json:"message"`
}

type EngineStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type Heartbeat struct{}
