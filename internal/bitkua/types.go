package bitkua

import "encoding/json"

// Bot is one record as the platform returns it.
type Bot struct {
	ID            json.Number `json:"id"`
	SecurityToken string      `json:"security_token"`
	Symbol        string      `json:"symbol"`
	Amount        float64     `json:"amount"`
	Active        string      `json:"active"`
	Exchange      string      `json:"exchange"`
	Estrategia    string      `json:"estrategia"`
	PositionSide  string      `json:"positionside"`
	Username      string      `json:"username"`
	Count         int         `json:"count"`
	Safe          string      `json:"safe"`
	CreatedAt     string      `json:"created_at"`
}

type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    []Bot  `json:"data"`
}

// Action is a control request routed through the notification path. Name uses
// the caller-facing verbs (updateStatus, updateAmount, createBot, delete,
// reset); the client maps them onto the platform's action strings.
type Action struct {
	Name         string  `json:"action"`
	BotID        string  `json:"botId,omitempty"`
	Status       string  `json:"status,omitempty"`
	Amount       float64 `json:"amount,omitempty"`
	Symbol       string  `json:"symbol,omitempty"`
	Exchange     string  `json:"exchange,omitempty"`
	Strategy     string  `json:"strategy,omitempty"`
	PositionSide string  `json:"positionSide,omitempty"`
	Safe         string  `json:"safe,omitempty"`
}

const (
	ActionUpdateStatus = "updateStatus"
	ActionUpdateAmount = "updateAmount"
	ActionCreateBot    = "createBot"
	ActionDelete       = "delete"
	ActionReset        = "reset"
)
