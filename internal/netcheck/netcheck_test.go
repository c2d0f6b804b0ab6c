package netcheck

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPOracleOnline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	o := &HTTPOracle{URL: srv.URL}
	if !o.Online(context.Background()) {
		t.Error("expected online against responding server")
	}
}

func TestHTTPOracleOfflineOnConnectError(t *testing.T) {
	// A server that is immediately closed leaves a port nothing listens on.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	o := &HTTPOracle{URL: url, Timeout: 500 * time.Millisecond}
	if o.Online(context.Background()) {
		t.Error("expected offline against closed server")
	}
}

func TestHTTPOracleOfflineOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	o := &HTTPOracle{URL: srv.URL}
	if o.Online(context.Background()) {
		t.Error("expected offline when probe target reports a server error")
	}
}

func TestStatic(t *testing.T) {
	if !Static(true).Online(context.Background()) {
		t.Error("Static(true) should be online")
	}
	if Static(false).Online(context.Background()) {
		t.Error("Static(false) should be offline")
	}
}
