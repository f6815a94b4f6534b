package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetConnectionStatus_OneHot(t *testing.T) {
	all := []string{"disconnected", "connecting", "connected"}
	SetConnectionStatus("connecting", all)
	SetConnectionStatus("connected", all)

	assert.Equal(t, 0.0, testutil.ToFloat64(ConnectionStatus.WithLabelValues("disconnected")))
	assert.Equal(t, 0.0, testutil.ToFloat64(ConnectionStatus.WithLabelValues("connecting")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ConnectionStatus.WithLabelValues("connected")))
}

func TestServe_EmptyAddrIsNoop(t *testing.T) {
	require.NoError(t, Serve(context.Background(), "", nil))
}
