// Package events carries ledger change notifications between clients over
// AMQP so that other devices signed into the same groups can refresh.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Type names a mutation that happened on the remote ledger.
type Type string

const (
	GroupCreated        Type = "group.created"
	GroupJoined         Type = "group.joined"
	TransactionRecorded Type = "transaction.recorded"
)

// RoutingPrefix is prepended to the group id to form the routing key.
const RoutingPrefix = "ledger."

// Message is a lightweight change notice. It carries only the group id; the
// receiver refetches whatever it shows for that group.
type Message struct {
	Type      Type      `json:"type" yaml:"type"`
	GroupID   string    `json:"groupId" yaml:"groupId"`
	Origin    string    `json:"origin,omitempty" yaml:"origin,omitempty"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(t Type, groupID string) Message {
	return Message{
		Type:      t,
		GroupID:   groupID,
		Timestamp: time.Now().UTC(),
	}
}

// RoutingKey is the topic the message is published under.
func (m Message) RoutingKey() string {
	return RoutingPrefix + m.GroupID
}

// ToJSON converts the message to JSON bytes
func (m Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MessageFromJSON decodes and validates a message.
func MessageFromJSON(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, err
	}
	switch msg.Type {
	case GroupCreated, GroupJoined, TransactionRecorded:
	default:
		return Message{}, fmt.Errorf("unknown event type %q", msg.Type)
	}
	if strings.TrimSpace(msg.GroupID) == "" {
		return Message{}, fmt.Errorf("event %s without group id", msg.Type)
	}
	return msg, nil
}
