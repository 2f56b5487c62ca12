package api

import (
	"sync"
	"testing"
	"time"
)

func TestWSClientSignalClose(t *testing.T) {
	t.Run("concurrent teardown closes once without panic", func(t *testing.T) {
		// A user deletion can call signalClose while the read pump's
		// deferred teardown does the same
		client := &WSClient{closeChan: make(chan struct{})}

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				client.signalClose()
			}()
		}
		wg.Wait()

		select {
		case <-client.closeChan:
		case <-time.After(time.Second):
			t.Fatal("closeChan not closed")
		}

		// A late signal after the channel is already closed is a no-op
		client.signalClose()
	})
}

func TestWSHubDisconnectUser(t *testing.T) {
	hub := NewWSHub()
	client := &WSClient{
		send:      make(chan []byte, 1),
		hub:       hub,
		userID:    "u1",
		closeChan: make(chan struct{}),
	}
	hub.clients[client] = true
	hub.userClients["u1"] = []*WSClient{client}

	hub.DisconnectUser("u1")

	if hub.GetClientCount() != 0 {
		t.Errorf("client count: got %d, want 0", hub.GetClientCount())
	}
	if _, ok := hub.userClients["u1"]; ok {
		t.Error("user still tracked after disconnect")
	}
	select {
	case <-client.closeChan:
	default:
		t.Error("closeChan not closed by DisconnectUser")
	}

	// Disconnecting again is a no-op
	hub.DisconnectUser("u1")
}
