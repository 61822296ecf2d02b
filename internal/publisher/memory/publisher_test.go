package memory

import (
	"context"
	"testing"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "apps", map[string]string{"app_id": "a1"})
	if err != nil || id1 != "memory-1" {
		t.Fatalf("unexpected publish result id=%s err=%v", id1, err)
	}
	id2, err := pub.Publish(context.Background(), "failures", "payload")
	if err != nil || id2 != "memory-2" {
		t.Fatalf("unexpected publish result id=%s err=%v", id2, err)
	}

	msgs := pub.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Topic != "apps" || msgs[1].Topic != "failures" {
		t.Fatalf("topics not recorded correctly: %+v", msgs)
	}

	var body map[string]string
	if err := msgs[0].Decode(&body); err != nil || body["app_id"] != "a1" {
		t.Fatalf("unexpected body %v err=%v", body, err)
	}

	msgs[0].Topic = "modified"
	if pub.Messages()[0].Topic == "modified" {
		t.Fatal("expected Messages() to return a copy")
	}
}

func TestPublisherRejectsUnencodablePayload(t *testing.T) {
	t.Parallel()

	if _, err := New().Publish(context.Background(), "apps", func() {}); err == nil {
		t.Fatal("expected marshal error")
	}
	if n := len(New().Messages()); n != 0 {
		t.Fatalf("expected no messages, got %d", n)
	}
}
