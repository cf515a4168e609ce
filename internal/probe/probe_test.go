package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCheckAcceptsHealthyPortal(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html><body>buscador</body></html>"))
	}))
	defer srv.Close()

	p := New(Config{Timeout: 5 * time.Second}, zap.NewNop())
	require.NoError(t, p.Check(context.Background(), srv.URL))
}

func TestCheckRejectsServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := New(Config{Timeout: 5 * time.Second}, zap.NewNop())
	err := p.Check(context.Background(), srv.URL)
	require.Error(t, err)
	require.Contains(t, err.Error(), "503")
}

func TestCheckRejectsUnreachableHost(t *testing.T) {
	t.Parallel()

	p := New(Config{Timeout: 2 * time.Second}, zap.NewNop())
	err := p.Check(context.Background(), "http://127.0.0.1:1")
	require.Error(t, err)
}
