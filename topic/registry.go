package topic

import "fmt"

// A Registry maps topic names to ids for one connection (or, on a
// gateway, holds the shared predefined topics). Insertion order is kept so
// a reconnecting client can be walked through its topics again; two
// indices give O(1) lookup by name and by non-zero id.
type Registry struct {
	topics []*Topic
	byName map[string]*Topic
	byID   map[uint16]*Topic
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Topic),
		byID:   make(map[uint16]*Topic),
	}
}

func (r *Registry) insert(t *Topic) *Topic {
	r.topics = append(r.topics, t)
	r.byName[t.Name] = t
	if t.ID != 0 && !t.wildcard {
		r.byID[t.ID] = t
	}
	return t
}

// RegTopic records a client-side registration request for name, keyed by
// the message id of the REGISTER in flight. An existing entry is returned
// as-is, complete or not. A wildcard name completes immediately with id 0.
func (r *Registry) RegTopic(name string, mid uint16) *Topic {
	if t, ok := r.byName[name]; ok {
		return t
	}
	t := newTopic(0, mid, name)
	if t.wildcard {
		t.Complete(0)
	}
	return r.insert(t)
}

// AddTopic is the gateway-side registration: an existing entry is
// returned, otherwise the next free id (max existing + 1, starting at 1)
// is allocated and the topic completed. Wildcards complete with id 0.
func (r *Registry) AddTopic(name string, mid uint16) *Topic {
	if t, ok := r.byName[name]; ok {
		return t
	}
	t := newTopic(0, mid, name)
	if !t.wildcard {
		t.ID = r.nextID()
	}
	t.Complete(t.ID)
	return r.insert(t)
}

func (r *Registry) nextID() uint16 {
	var max uint16
	for _, t := range r.topics {
		if t.ID > max {
			max = t.ID
		}
	}
	return max + 1
}

// CreateTopic force-binds id to name, completed. Used for predefined
// topics and for bindings pushed by the peer. Id 0 is allowed and serves
// as the wildcard-subscription placeholder. Binding an id already held by
// a different name fails.
func (r *Registry) CreateTopic(name string, id uint16, predefined bool) (*Topic, error) {
	if t, ok := r.byName[name]; ok {
		if t.ID != id {
			return nil, fmt.Errorf("topic %q already bound to id %d", name, t.ID)
		}
		return t, nil
	}
	if id != 0 {
		if t, ok := r.byID[id]; ok {
			return nil, fmt.Errorf("topic id %d already bound to %q", id, t.Name)
		}
	}
	t := newTopic(id, 0, name)
	t.predefined = predefined
	if !t.Complete(id) {
		return nil, fmt.Errorf("wildcard topic %q cannot take id %d", name, id)
	}
	return r.insert(t), nil
}

// CompleteTopic resolves the pending registration keyed by mid, binding
// id. Already-complete topics are ignored; a wildcard refuses a non-zero
// id. Returns nil if nothing was completed.
func (r *Registry) CompleteTopic(mid, id uint16) *Topic {
	for _, t := range r.topics {
		if t.MessageID != mid || t.complete {
			continue
		}
		if !t.Complete(id) {
			return nil
		}
		if id != 0 {
			r.byID[id] = t
		}
		return t
	}
	return nil
}

// GetTopic returns the completed topic bound to a non-zero id.
func (r *Registry) GetTopic(id uint16) *Topic {
	if id == 0 {
		return nil
	}
	return r.byID[id]
}

// GetTopicByName returns the entry for name, complete or not.
func (r *Registry) GetTopicByName(name string) *Topic {
	return r.byName[name]
}

func (r *Registry) remove(match func(*Topic) bool) bool {
	for i, t := range r.topics {
		if !match(t) {
			continue
		}
		r.topics = append(r.topics[:i], r.topics[i+1:]...)
		delete(r.byName, t.Name)
		if t.ID != 0 {
			delete(r.byID, t.ID)
		}
		return true
	}
	return false
}

func (r *Registry) DelTopic(id uint16) bool {
	return r.remove(func(t *Topic) bool { return t.ID == id && id != 0 })
}

func (r *Registry) DelTopicByMessageID(mid uint16) bool {
	return r.remove(func(t *Topic) bool { return t.MessageID == mid })
}

// FreeAll drops every topic. Used on clean-session connects and client
// disconnects.
func (r *Registry) FreeAll() {
	r.topics = nil
	r.byName = make(map[string]*Topic)
	r.byID = make(map[uint16]*Topic)
}

// Topics returns the entries in insertion order. The slice is shared;
// callers iterate, they do not mutate.
func (r *Registry) Topics() []*Topic { return r.topics }

func (r *Registry) Len() int { return len(r.topics) }
