package commsutil

import (
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
)

const connectTestPrefix = "commsutil:connect_test"

func TestConnect_InvalidURL(t *testing.T) {
	nc, err := Connect("invalid://not-a-nats-server", "agentlink-test")
	if err == nil {
		if nc != nil {
			nc.Close()
		}
		t.Fatalf("%s - expected error for invalid URL", connectTestPrefix)
	}
	if nc != nil {
		t.Errorf("%s - expected nil connection on error", connectTestPrefix)
	}
}

func TestConnect_EmbeddedServer(t *testing.T) {
	ns, err := commsserver.NewServer(&commsserver.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	if err != nil {
		t.Fatalf("%s - new server: %v", connectTestPrefix, err)
	}
	go ns.Start()
	defer ns.Shutdown()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatalf("%s - embedded server not ready", connectTestPrefix)
	}

	nc, err := Connect(ns.ClientURL(), "agentlink-test")
	if err != nil {
		t.Fatalf("%s - connect: %v", connectTestPrefix, err)
	}
	defer nc.Close()
	if !nc.IsConnected() {
		t.Errorf("%s - expected connected", connectTestPrefix)
	}
	if got := nc.Opts.Name; got != "agentlink-test" {
		t.Errorf("%s - connection name = %q", connectTestPrefix, got)
	}
}
