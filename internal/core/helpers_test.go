package core

import (
	"testing"
	"time"

	"github.com/JonMunkholm/guestlist/internal/registry"
	"github.com/JonMunkholm/guestlist/internal/registry/registrytest"
)

func newTestService(t *testing.T, opts Options) (*Service, *registrytest.Server) {
	t.Helper()
	srv := registrytest.NewServer(t)
	srv.SetToken("test-token")
	reg := registry.New(srv.URL, "test-token", 2*time.Second)
	return NewService(reg, opts), srv
}
