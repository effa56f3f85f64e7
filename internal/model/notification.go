package model

import (
	"encoding/json"
	"strings"
)

type ChangeType string

const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
)

// ParseChangeType normalizes the platform's casing; ok is false for anything else.
func ParseChangeType(s string) (ChangeType, bool) {
	switch ChangeType(strings.ToLower(strings.TrimSpace(s))) {
	case ChangeCreated:
		return ChangeCreated, true
	case ChangeUpdated:
		return ChangeUpdated, true
	case ChangeDeleted:
		return ChangeDeleted, true
	default:
		return "", false
	}
}

type ResourceKind string

const ResourceCall ResourceKind = "#microsoft.graph.call"

// NotificationBatch is the webhook body: one delivery may carry several changes.
type NotificationBatch struct {
	Value []RawNotification `json:"value"`
}

// RawNotification is one entry of the batch as sent on the wire.
type RawNotification struct {
	ChangeType   string          `json:"changeType"`
	Resource     string          `json:"resource"`
	ResourceURL  string          `json:"resourceUrl"`
	ResourceData json.RawMessage `json:"resourceData"`
	TenantID     string          `json:"tenantId"`
}

// Notification is a validated, parsed envelope scoped to one delivery.
type Notification struct {
	ResourceURL  string
	ChangeType   ChangeType
	Kind         ResourceKind
	ResourceData json.RawMessage
	TenantID     string
	ScenarioID   string
}

// Call decodes ResourceData as a call resource.
func (n Notification) Call() (Call, error) {
	var c Call
	if err := json.Unmarshal(n.ResourceData, &c); err != nil {
		return Call{}, err
	}
	if c.ID == "" {
		c.ID = lastSegment(n.ResourceURL)
	}
	if c.TenantID == "" {
		c.TenantID = n.TenantID
	}
	return c, nil
}

func lastSegment(resourceURL string) string {
	s := strings.TrimRight(resourceURL, "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[i+1:]
	}
	return s
}
