package gcs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, Config{Bucket: "b"}); err == nil {
		t.Fatal("expected error for nil client")
	}

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	defer func() { _ = client.Close() }()

	if _, err := New(client, Config{Bucket: "  "}); err == nil {
		t.Fatal("expected error for blank bucket")
	}
	store, err := New(client, Config{Bucket: "snapshots"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.PutObject(context.Background(), "/", "text/html", nil); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestIsPreconditionFailed(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("close: %w", &googleapi.Error{Code: http.StatusPreconditionFailed})
	if !isPreconditionFailed(wrapped) {
		t.Fatal("expected 412 to be detected")
	}
	if isPreconditionFailed(&googleapi.Error{Code: http.StatusForbidden}) {
		t.Fatal("403 is not a precondition failure")
	}
	if isPreconditionFailed(errors.New("plain")) {
		t.Fatal("plain errors are not precondition failures")
	}
}
