package httpapi

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/ledger_gateway/pkg/logger"
)

func TestServer_StartStop(t *testing.T) {
	env := newTestEnv(t, false)
	srv := NewServer(ServerConfig{Addr: "127.0.0.1:0"}, env.handler, logger.NewDiscard())
	assert.Equal(t, "http-server", srv.Name())

	ctx := context.Background()
	require.NoError(t, srv.Start(ctx))
	require.NoError(t, srv.Start(ctx))
	addr := srv.Addr()
	require.NotNil(t, addr)

	resp, err := http.Get("http://" + addr.String() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	require.NoError(t, srv.Stop(ctx))
	require.NoError(t, srv.Stop(ctx))

	_, err = http.Get("http://" + addr.String() + "/healthz")
	assert.Error(t, err)
}

func TestServer_BindError(t *testing.T) {
	srv := NewServer(ServerConfig{Addr: "256.0.0.1:bad"}, http.NotFoundHandler(), logger.NewDiscard())
	assert.Error(t, srv.Start(context.Background()))
}
