package model

import "time"

// CallEvent records one lifecycle transition of a call handled by this bot.
type CallEvent struct {
	ID         string    `db:"id"          json:"id"`
	CallID     string    `db:"call_id"     json:"call_id"`
	TenantID   string    `db:"tenant_id"   json:"tenant_id"`
	ScenarioID string    `db:"scenario_id" json:"scenario_id"`
	FromState  string    `db:"from_state"  json:"from_state"`
	ToState    string    `db:"to_state"    json:"to_state"`
	Reason     string    `db:"reason"      json:"reason,omitempty"`
	OccurredAt time.Time `db:"occurred_at" json:"occurred_at"`
}
