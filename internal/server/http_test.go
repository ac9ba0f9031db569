package server

import (
	"net/http"
	"testing"
)

func TestNewHTTPServer(t *testing.T) {
	h := http.NewServeMux()
	srv := NewHTTPServer(":8000", h)
	if srv.Addr != ":8000" || srv.Handler != h {
		t.Errorf("server = %+v", srv)
	}
	if srv.ReadHeaderTimeout == 0 || srv.WriteTimeout == 0 || srv.IdleTimeout == 0 {
		t.Error("timeouts not set")
	}
}
