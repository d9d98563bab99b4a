package topic

import (
	"strings"
	"time"
)

// A Topic is one entry of a per-connection registry: a topic name bound
// (or waiting to be bound) to a 16-bit topic id.
//
// Id 0 means "unassigned"; a wildcard topic keeps id 0 forever and acts as
// a subscription placeholder. A short topic carries its 2-octet name
// inline on the wire, so its id is never allocated from the registry.
type Topic struct {
	ID        uint16
	Name      string
	QoS       uint8
	MessageID uint16 // correlates a pending client registration

	registeredAt time.Time
	complete     bool
	subscribed   bool
	predefined   bool
	wildcard     bool
	short        bool
}

func newTopic(id, mid uint16, name string) *Topic {
	return &Topic{
		ID:           id,
		Name:         name,
		MessageID:    mid,
		registeredAt: time.Now(),
		wildcard:     strings.ContainsAny(name, "+#"),
		short:        len(name) == 2 && !strings.ContainsAny(name, "+#/"),
	}
}

func (t *Topic) IsComplete() bool { return t.complete }
func (t *Topic) IsWildcard() bool { return t.wildcard }
func (t *Topic) IsShort() bool { return t.short }
func (t *Topic) IsPredefined() bool { return t.predefined }
func (t *Topic) IsSubscribed() bool { return t.subscribed }

func (t *Topic) SetSubscribed(b bool) { t.subscribed = b }
func (t *Topic) SetShort(b bool) { t.short = b }

// Complete binds the id and marks the topic acknowledged. A wildcard topic
// refuses any non-zero id: the placeholder must keep id 0.
func (t *Topic) Complete(id uint16) bool {
	if t.wildcard && id != 0 {
		return false
	}
	t.ID = id
	t.complete = true
	return true
}

// Match reports whether a concrete published topic name matches this
// entry's name under the wildcard rules.
func (t *Topic) Match(name string) bool {
	return Match(t.Name, name)
}
