package transport

import "testing"

func TestPublishRequiresConnection(t *testing.T) {
	c := NewMQTTConn(Config{Broker: "localhost:1883", ClientID: "painter-test"})

	if err := c.Publish("painter/status/test", 0, []byte("{}")); err == nil {
		t.Fatal("Publish() succeeded without connection")
	}
	if err := c.Subscribe("painter/control/test", 1, func(string, []byte) {}); err == nil {
		t.Fatal("Subscribe() succeeded without connection")
	}

	stats := c.Stats()
	if stats.Connected {
		t.Error("Stats().Connected = true before Connect")
	}
	if stats.Errors != 1 {
		t.Errorf("Stats().Errors = %d, want 1", stats.Errors)
	}

	// Idempotent on a never-connected client
	if err := c.Unsubscribe("painter/control/test"); err != nil {
		t.Errorf("Unsubscribe() failed: %v", err)
	}
	if err := c.Disconnect(); err != nil {
		t.Errorf("Disconnect() failed: %v", err)
	}
}
