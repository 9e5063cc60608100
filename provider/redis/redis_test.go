package redis

import "testing"

func TestNewRequiresClient(t *testing.T) {
	if _, err := New(Config{}); err != ErrNilClient {
		t.Fatalf("err = %v, want ErrNilClient", err)
	}
}

func TestKeyPrefixing(t *testing.T) {
	p := &Redis{prefix: "tenantA:"}
	if got := p.key("snap:app"); got != "tenantA:snap:app" {
		t.Fatalf("prefixed key = %q", got)
	}
	bare := &Redis{}
	if got := bare.key("queue:app"); got != "queue:app" {
		t.Fatalf("unprefixed key = %q", got)
	}
}
