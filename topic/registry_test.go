package topic

import "testing"

func TestAddTopicAllocatesSequentialIDs(t *testing.T) {
	r := NewRegistry()
	a := r.AddTopic("sensors/t", 0)
	b := r.AddTopic("sensors/h", 0)
	if a.ID != 1 || b.ID != 2 {
		t.Fatalf("ids = %d, %d, want 1, 2", a.ID, b.ID)
	}
	if !a.IsComplete() || !b.IsComplete() {
		t.Fatal("gateway-added topics should be complete")
	}
	// Existing topic comes back unchanged
	if again := r.AddTopic("sensors/t", 9); again != a {
		t.Fatal("AddTopic should return the existing entry")
	}
	// Allocation resumes above the highest surviving id
	r.DelTopic(1)
	if c := r.AddTopic("sensors/p", 0); c.ID != 3 {
		t.Fatalf("id after delete = %d, want 3", c.ID)
	}
}

func TestAddTopicWildcardKeepsZeroID(t *testing.T) {
	r := NewRegistry()
	w := r.AddTopic("room/+/temp", 0)
	if w.ID != 0 || !w.IsWildcard() || !w.IsComplete() {
		t.Fatalf("wildcard topic = id %d, wildcard %v, complete %v", w.ID, w.IsWildcard(), w.IsComplete())
	}
	if r.GetTopic(0) != nil {
		t.Fatal("id 0 must never resolve")
	}
	// Ids allocated around the wildcard stay dense
	if a := r.AddTopic("room/1/temp", 0); a.ID != 1 {
		t.Fatalf("id = %d, want 1", a.ID)
	}
}

func TestRegTopicPendingCompletion(t *testing.T) {
	r := NewRegistry()
	p := r.RegTopic("sensors/t", 42)
	if p.IsComplete() || p.ID != 0 {
		t.Fatal("client-registered topic must start incomplete with id 0")
	}
	if r.CompleteTopic(41, 5) != nil {
		t.Fatal("unknown message id should not complete anything")
	}
	done := r.CompleteTopic(42, 5)
	if done != p || !p.IsComplete() || p.ID != 5 {
		t.Fatalf("completion failed: %+v", p)
	}
	if r.GetTopic(5) != p {
		t.Fatal("completed topic not indexed by id")
	}
	// Completing again is a no-op
	if r.CompleteTopic(42, 6) != nil {
		t.Fatal("already-complete topic must be ignored")
	}
}

func TestCompleteTopicWildcardRefusesID(t *testing.T) {
	r := NewRegistry()
	w := r.RegTopic("room/+/temp", 7)
	if !w.IsComplete() || w.ID != 0 {
		t.Fatal("wildcard registration should complete immediately with id 0")
	}
	if w.Complete(3) {
		t.Fatal("wildcard must refuse a non-zero id")
	}
}

func TestCreateTopic(t *testing.T) {
	r := NewRegistry()
	if _, err := r.CreateTopic("config/led", 20, true); err != nil {
		t.Fatal(err)
	}
	if _, err := r.CreateTopic("config/other", 20, true); err == nil {
		t.Fatal("rebinding id 20 to a different name must fail")
	}
	if _, err := r.CreateTopic("config/led", 20, true); err != nil {
		t.Fatal("same binding twice is not an error")
	}
	got := r.GetTopic(20)
	if got == nil || !got.IsPredefined() || got.Name != "config/led" {
		t.Fatalf("predefined topic = %+v", got)
	}
	// id 0 placeholder is allowed
	if _, err := r.CreateTopic("room/1/temp", 0, false); err != nil {
		t.Fatal(err)
	}
}

func TestIDUniquenessUnderChurn(t *testing.T) {
	r := NewRegistry()
	names := []string{"a", "b/c", "d/+", "e", "f/#", "g"}
	for _, n := range names {
		r.AddTopic(n, 0)
	}
	r.DelTopic(2)
	r.AddTopic("h", 0)
	seen := make(map[uint16]bool)
	for _, tp := range r.Topics() {
		if tp.IsWildcard() {
			if tp.ID != 0 {
				t.Errorf("wildcard %q has id %d", tp.Name, tp.ID)
			}
			continue
		}
		if !tp.IsComplete() {
			continue
		}
		if tp.ID == 0 {
			t.Errorf("completed topic %q has id 0", tp.Name)
		}
		if seen[tp.ID] {
			t.Errorf("duplicate id %d", tp.ID)
		}
		seen[tp.ID] = true
	}
}

func TestDelTopicByMessageID(t *testing.T) {
	r := NewRegistry()
	r.RegTopic("sensors/t", 11)
	if !r.DelTopicByMessageID(11) {
		t.Fatal("pending topic should be deletable by message id")
	}
	if r.GetTopicByName("sensors/t") != nil {
		t.Fatal("topic survived deletion")
	}
}

func TestFreeAllResetsIDAllocation(t *testing.T) {
	r := NewRegistry()
	r.AddTopic("a", 0)
	r.AddTopic("b", 0)
	r.FreeAll()
	if r.Len() != 0 {
		t.Fatal("FreeAll left topics behind")
	}
	c := r.AddTopic("c", 0)
	if c.ID != 1 {
		t.Fatalf("id allocation did not reset, got %d", c.ID)
	}
}

func TestShortTopicDetection(t *testing.T) {
	r := NewRegistry()
	s := r.RegTopic("TP", 1)
	if !s.IsShort() {
		t.Fatal("2-octet name should be flagged short")
	}
	if r.RegTopic("T/", 2).IsShort() {
		t.Fatal("a name holding '/' is not a short topic")
	}
}
