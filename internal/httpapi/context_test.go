package httpapi

import (
	"context"
	"testing"
	"time"
)

type ctxKey struct{}

func TestJoinContexts_CancelsWhenBaseDone(t *testing.T) {
	base, cancelBase := context.WithCancel(context.Background())
	req := context.WithValue(context.Background(), ctxKey{}, "v")
	j, cancel := joinContexts(base, req)
	defer cancel()
	if j.Value(ctxKey{}) != "v" {
		t.Fatalf("request values lost")
	}
	cancelBase()
	select {
	case <-j.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("joined context did not cancel after base canceled")
	}
}

func TestJoinContexts_CancelsWhenRequestDone(t *testing.T) {
	req, cancelReq := context.WithCancel(context.Background())
	j, cancel := joinContexts(context.Background(), req)
	defer cancel()
	cancelReq()
	select {
	case <-j.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("joined context did not cancel when request canceled")
	}
}
