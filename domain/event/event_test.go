package event

import (
	"encoding/json"
	"testing"
)

func TestEventJSONShape(t *testing.T) {
	ev := NewRepositoryStatusChanged(7, "acme/svc", "connecting", "connected")

	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}

	// Flat object: base fields are siblings of the payload.
	for _, key := range []string{"id", "occurredOn", "type", "repositoryId", "from", "to"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("serialized event missing %q: %s", key, raw)
		}
	}
	if decoded["type"] != TypeRepositoryStatusChanged {
		t.Fatalf("type = %v", decoded["type"])
	}
}

func TestEventIdentity(t *testing.T) {
	a := NewRepositoryReady(1, "acme/svc")
	b := NewRepositoryReady(1, "acme/svc")

	if a.EventID() == "" || a.EventID() == b.EventID() {
		t.Fatal("event ids must be unique and non-empty")
	}
	if a.OccurredOn().IsZero() {
		t.Fatal("occurredOn not set")
	}
	if a.OccurredOn().Location() != a.OccurredOn().UTC().Location() {
		t.Fatal("occurredOn must be UTC")
	}
	if a.EventType() != TypeRepositoryReady {
		t.Fatalf("type = %s", a.EventType())
	}
}

func TestMessageDelta_SeqAssignedLater(t *testing.T) {
	d := NewMessageDelta("conv-1", "msg-1", "partial text")
	if d.Seq != 0 {
		t.Fatal("seq must start unassigned")
	}
	if d.ConversationID != "conv-1" || d.Content != "partial text" {
		t.Fatal("payload fields not carried")
	}
}

func TestGraphCompleted_CopiesRepositoryIDs(t *testing.T) {
	ids := []int64{1, 2}
	ev := NewGraphCompleted(5, ids, 10, 20, 3)
	ids[0] = 99
	if ev.RepositoryIDs[0] != 1 {
		t.Fatal("constructor must copy the id slice")
	}
}
