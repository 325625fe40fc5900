package pubsub

import (
	"context"
	"testing"

	"github.com/angelmondragon/marketcore-backend/pkg/config"
)

func TestResourceNames(t *testing.T) {
	c := &Client{projectID: "market-prod"}

	if got := c.resourceName(kindSubscription, "orders-sub"); got != "projects/market-prod/subscriptions/orders-sub" {
		t.Fatalf("unexpected subscription name %q", got)
	}
	full := "projects/other/subscriptions/payouts-sub"
	if got := c.resourceName(kindSubscription, full); got != full {
		t.Fatalf("full subscription names must pass through, got %q", got)
	}
	if got := c.resourceName(kindTopic, full); got == full {
		t.Fatalf("a subscription path is not a topic path")
	}
	if got := c.resourceName(kindTopic, " orders "); got != "projects/market-prod/topics/orders" {
		t.Fatalf("unexpected topic name %q", got)
	}
	if got := c.resourceName(kindTopic, ""); got != "" {
		t.Fatalf("empty topic should resolve to empty name, got %q", got)
	}
}

func TestNonBlankSkipsEmptyNames(t *testing.T) {
	names := nonBlank("orders-sub", "  ", "")
	if len(names) != 1 || names[0] != "orders-sub" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestClientOptionsPreferInlineCredentials(t *testing.T) {
	if opts := clientOptions(config.GCPConfig{}); len(opts) != 0 {
		t.Fatalf("expected default credentials, got %d options", len(opts))
	}
	if opts := clientOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`, ApplicationCredentials: "/tmp/key.json"}); len(opts) != 1 {
		t.Fatalf("expected a single credentials option, got %d", len(opts))
	}
	if opts := clientOptions(config.GCPConfig{ApplicationCredentials: "/tmp/key.json"}); len(opts) != 1 {
		t.Fatalf("expected file credentials option, got %d", len(opts))
	}
}

func TestRoleString(t *testing.T) {
	if RolePublisher.String() != "publisher" || RoleSubscriber.String() != "subscriber" {
		t.Fatalf("unexpected role names")
	}
}

func TestNilClientHandles(t *testing.T) {
	var c *Client
	if c.Subscription("orders-sub") != nil {
		t.Fatal("nil client should return nil subscriber")
	}
	if c.Publisher("orders") != nil {
		t.Fatal("nil client should return nil publisher")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("nil close should be a no-op, got %v", err)
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("nil ping should fail")
	}
}
