package backends

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	testhelpers "github.com/wayneeseguin/fanlog/internal/testing"
	"github.com/wayneeseguin/fanlog/pkg/types"
)

// Requires FANLOG_RUN_INTEGRATION_TESTS=true and FANLOG_NATS_URL, e.g. nats://localhost:4222.
func TestNATSBackendIntegration(t *testing.T) {
	server := testhelpers.EnvOrSkip(t, "FANLOG_NATS_URL")
	subject := "fanlog.it." + uuid.NewString()

	sub, err := nats.Connect(server)
	if err != nil {
		t.Fatalf("connect subscriber: %v", err)
	}
	defer sub.Close()
	msgs, err := sub.SubscribeSync(subject)
	if err != nil {
		t.Fatal(err)
	}
	if err := sub.Flush(); err != nil {
		t.Fatal(err)
	}

	target, err := Open(strings.TrimSuffix(server, "/")+"/"+subject, FileOptions{})
	if err != nil {
		t.Fatalf("open target: %v", err)
	}
	rec := &types.Record{Level: types.LevelError, Name: "billing"}
	if _, err := WriteTo(target, rec, []byte("payment failed\n")); err != nil {
		t.Fatal(err)
	}
	if err := target.Close(); err != nil {
		t.Fatal(err)
	}

	msg, err := msgs.NextMsg(5 * time.Second)
	if err != nil {
		t.Fatalf("no message received: %v", err)
	}
	if string(msg.Data) != "payment failed\n" || msg.Header.Get(HeaderLevel) != "ERROR" {
		t.Errorf("got %q with headers %v", msg.Data, msg.Header)
	}
	if msg.Header.Get(nats.MsgIdHdr) == "" {
		t.Error("message id header missing")
	}
}
