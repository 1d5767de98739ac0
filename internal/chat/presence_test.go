package chat

import (
	"fmt"
	"sync"
	"testing"

	"github.com/rynok/market/internal/domain"
)

func TestPresenceRegisterUnregister(t *testing.T) {
	p := NewPresence()
	const user = domain.UserID(1)

	if p.IsOnline(user) {
		t.Fatal("user online before registering")
	}
	if !p.Register(user, "c1") {
		t.Fatal("first register should report coming online")
	}
	if !p.IsOnline(user) {
		t.Fatal("user offline after register")
	}
	if !p.Unregister(user, "c1") {
		t.Fatal("last unregister should report going offline")
	}
	if p.IsOnline(user) {
		t.Fatal("user online after last unregister")
	}
}

func TestPresenceMultipleConnections(t *testing.T) {
	p := NewPresence()
	const user = domain.UserID(7)

	p.Register(user, "tab1")
	if p.Register(user, "tab2") {
		t.Fatal("second register must not report coming online again")
	}
	if p.Unregister(user, "tab1") {
		t.Fatal("user still has a connection, must not go offline")
	}
	if !p.IsOnline(user) {
		t.Fatal("user went offline with a live connection")
	}
	if !p.Unregister(user, "tab2") {
		t.Fatal("removing the last connection must report offline")
	}
}

func TestPresenceUnknownUnregister(t *testing.T) {
	p := NewPresence()
	if p.Unregister(99, "ghost") {
		t.Fatal("unregistering unknown pair reported offline transition")
	}
}

func TestPresenceConcurrent(t *testing.T) {
	p := NewPresence()
	const user = domain.UserID(3)
	const n = 64

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := ConnID(fmt.Sprintf("c%d", i))
			p.Register(user, conn)
			p.IsOnline(user)
			p.Unregister(user, conn)
		}(i)
	}
	wg.Wait()

	if p.IsOnline(user) {
		t.Fatal("user still online after all connections unregistered")
	}
}
