package backends

import (
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/wayneeseguin/fanlog/pkg/types"
)

type fakeNATS struct {
	msgs    []*nats.Msg
	fail    error
	flushes int
	closed  bool
}

func (f *fakeNATS) PublishMsg(m *nats.Msg) error {
	if f.fail != nil {
		return f.fail
	}
	f.msgs = append(f.msgs, m)
	return nil
}

func (f *fakeNATS) FlushTimeout(time.Duration) error {
	f.flushes++
	return nil
}

func (f *fakeNATS) Close() { f.closed = true }

func TestParseNATSURI(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		want    NATSConfig
		wantErr bool
	}{
		{
			name: "minimal",
			uri:  "nats://localhost:4222/logs.app",
			want: NATSConfig{
				Servers: []string{"nats://localhost:4222"}, Subject: "logs.app", Name: "fanlog",
				MaxReconnects: 60, ReconnectWait: 2 * time.Second, FlushTimeout: 5 * time.Second,
			},
		},
		{
			name: "cluster with auth and options",
			uri:  "nats://user:secret@a:4222,b:4222/logs?name=api&tls=true&max_reconnect=5&reconnect_wait=500ms",
			want: NATSConfig{
				Servers: []string{"nats://a:4222", "nats://b:4222"}, Subject: "logs", Name: "api",
				Username: "user", Password: "secret", TLS: true,
				MaxReconnects: 5, ReconnectWait: 500 * time.Millisecond, FlushTimeout: 5 * time.Second,
			},
		},
		{name: "wrong scheme", uri: "http://localhost/logs", wantErr: true},
		{name: "no subject", uri: "nats://localhost:4222", wantErr: true},
		{name: "no host", uri: "nats:///logs", wantErr: true},
		{name: "bad reconnect", uri: "nats://h/logs?max_reconnect=many", wantErr: true},
		{name: "bad wait", uri: "nats://h/logs?reconnect_wait=soon", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseNATSURI(tt.uri)
			if tt.wantErr {
				if !errors.Is(err, types.ErrConfig) {
					t.Errorf("expected config error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got.Subject != tt.want.Subject || got.Name != tt.want.Name ||
				got.Username != tt.want.Username || got.Password != tt.want.Password ||
				got.TLS != tt.want.TLS || got.MaxReconnects != tt.want.MaxReconnects ||
				got.ReconnectWait != tt.want.ReconnectWait || got.FlushTimeout != tt.want.FlushTimeout {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
			if len(got.Servers) != len(tt.want.Servers) {
				t.Fatalf("servers %v, want %v", got.Servers, tt.want.Servers)
			}
			for i := range got.Servers {
				if got.Servers[i] != tt.want.Servers[i] {
					t.Errorf("servers %v, want %v", got.Servers, tt.want.Servers)
				}
			}
		})
	}
}

func TestNATSBackendPublish(t *testing.T) {
	conn := &fakeNATS{}
	nb := newNATSBackend(conn, NATSConfig{Subject: "logs.app"})
	ids := 0
	nb.newID = func() string {
		ids++
		return []string{"", "id-1", "id-2"}[ids]
	}

	entry := []byte("hello\n")
	rec := &types.Record{Level: types.LevelWarning, Name: "api.auth"}
	if _, err := WriteTo(nb, rec, entry); err != nil {
		t.Fatal(err)
	}
	entry[0] = 'J'
	if _, err := nb.Write([]byte("bare\n")); err != nil {
		t.Fatal(err)
	}

	if len(conn.msgs) != 2 {
		t.Fatalf("published %d messages", len(conn.msgs))
	}
	first := conn.msgs[0]
	if first.Subject != "logs.app" || string(first.Data) != "hello\n" {
		t.Errorf("first message %q on %q; data must be copied", first.Data, first.Subject)
	}
	if first.Header.Get(nats.MsgIdHdr) != "id-1" {
		t.Errorf("msg id %q", first.Header.Get(nats.MsgIdHdr))
	}
	if first.Header.Get(HeaderLevel) != "WARNING" || first.Header.Get(HeaderLogger) != "api.auth" {
		t.Errorf("record headers %v", first.Header)
	}

	second := conn.msgs[1]
	if second.Header.Get(nats.MsgIdHdr) != "id-2" || second.Header.Get(HeaderLevel) != "" {
		t.Errorf("bare write headers %v", second.Header)
	}

	if err := nb.Close(); err != nil {
		t.Fatal(err)
	}
	if conn.flushes != 1 || !conn.closed {
		t.Errorf("Close should flush then close: flushes=%d closed=%v", conn.flushes, conn.closed)
	}
	if s := nb.Stats(); s.WriteCount != 2 || s.BytesWritten != 11 {
		t.Errorf("stats %+v", s)
	}
}

func TestNATSBackendPublishError(t *testing.T) {
	conn := &fakeNATS{fail: nats.ErrConnectionClosed}
	nb := newNATSBackend(conn, NATSConfig{Subject: "logs"})

	if _, err := nb.Write([]byte("x")); !errors.Is(err, nats.ErrConnectionClosed) {
		t.Errorf("expected wrapped connection error, got %v", err)
	}
	if nb.Stats().ErrorCount != 1 {
		t.Error("error not counted")
	}
}
