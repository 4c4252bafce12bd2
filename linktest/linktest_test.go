package linktest_test

import (
	"testing"

	"github.com/creachadair/tether"
	"github.com/creachadair/tether/linktest"
	"github.com/fortytw2/leaktest"
)

func TestLocal(t *testing.T) {
	defer leaktest.Check(t)()

	loc := linktest.NewLocal(t)
	defer loc.Stop()

	if loc.Conn == nil || loc.Conn.State() != tether.Open {
		t.Fatalf("Server conn: got %v, want open", loc.Conn)
	}
	if n := loc.Server.ConnectedCount(); n != 1 {
		t.Errorf("ConnectedCount: got %d, want 1", n)
	}

	loc.Client.Send("up")
	if msg := linktest.Next(t, loc.Events.Data); msg.Text != "up" || msg.Conn != loc.Conn {
		t.Errorf("Data: got %+v, want up from %v", msg, loc.Conn)
	}
	loc.Conn.Send("down")
	if got := linktest.Next(t, loc.Frames); got != "down" {
		t.Errorf("Frame: got %q, want down", got)
	}

	loc.Stop()
	if got := linktest.Next(t, loc.Events.Disconnected); got != loc.Conn {
		t.Errorf("Disconnected: got %v, want %v", got, loc.Conn)
	}
	linktest.Next(t, loc.Events.Stopped)
	if loc.Client.IsConnected() {
		t.Error("Client is still connected after Stop")
	}
}

func TestHostPort(t *testing.T) {
	defer leaktest.Check(t)()

	s, _ := linktest.NewServer(t)
	defer s.Stop()

	host, port := linktest.HostPort(t, s)
	if host != "127.0.0.1" || port <= 0 {
		t.Errorf("HostPort: got %q, %d", host, port)
	}
}
