package models

// NotifyMessage is the discriminated event pushed to every subscriber.
// Store identifies the logical store the payload belongs to, e.g.
// "bingx.balance", "kucoin.positions", "bitget.klines", "bots",
// "notifications". Only the fields relevant to the store are populated.
type NotifyMessage struct {
	Store string `json:"store"`

	Transactions []Transaction `json:"transactions,omitempty"`
	Trades       []Trade       `json:"trades,omitempty"`
	Balance      *Balance      `json:"balance,omitempty"`
	Positions    []Position    `json:"positions,omitempty"`
	Contracts    []Contract    `json:"contracts,omitempty"`

	Symbol string `json:"symbol,omitempty"`
	Period Period `json:"period,omitempty"`
	KLines []KLine `json:"klines,omitempty"`

	Bots         []Bot         `json:"bots,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
}
