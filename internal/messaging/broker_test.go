package messaging

import (
	"testing"
	"time"
)

func TestConnectTimeoutResolution(t *testing.T) {
	b := NewBroker(BrokerConfig{BrokerURL: "tcp://b", ClientName: "t", ConnectTimeout: 2 * time.Second})
	if got := b.connectTimeout(); got != 2*time.Second {
		t.Fatalf("connectTimeout = %v, want configured 2s", got)
	}

	b = NewBroker(BrokerConfig{BrokerURL: "tcp://b", ClientName: "t"})
	if got := b.connectTimeout(); got != 10*time.Second {
		t.Fatalf("connectTimeout = %v, want 10s default", got)
	}
}

func TestTopicJoinsUnderPrefix(t *testing.T) {
	b := NewBroker(BrokerConfig{TopicPrefix: "victron/house"})
	if got := b.Topic("snapshot"); got != "victron/house/snapshot" {
		t.Fatalf("Topic = %q", got)
	}
}
