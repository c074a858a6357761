package chain

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rpcServer(t *testing.T, results map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		result, ok := results[req.Method]
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"method not found"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":` + result + `}`))
	}))
}

func TestRPCClientLatestHeight(t *testing.T) {
	srv := rpcServer(t, map[string]string{"eth_blockNumber": `"0x1b4"`})
	defer srv.Close()

	h, err := NewRPCClient(srv.URL).LatestHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(436), h)
}

func TestRPCClientReceipt(t *testing.T) {
	srv := rpcServer(t, map[string]string{
		"eth_getTransactionReceipt": `{"transactionHash":"0xabc","blockNumber":"0x10","status":"0x1"}`,
	})
	defer srv.Close()

	rc, err := NewRPCClient(srv.URL).Receipt(context.Background(), "0xabc")
	require.NoError(t, err)
	require.NotNil(t, rc)
	assert.Equal(t, int64(16), rc.BlockNumber)
	assert.True(t, rc.Success)
}

func TestRPCClientReceiptPending(t *testing.T) {
	srv := rpcServer(t, map[string]string{"eth_getTransactionReceipt": `null`})
	defer srv.Close()

	rc, err := NewRPCClient(srv.URL).Receipt(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Nil(t, rc)
}

func TestRPCClientTxByHash(t *testing.T) {
	srv := rpcServer(t, map[string]string{
		"eth_getTransactionByHash": `{"hash":"0xabc","from":"0x01","to":"0x02","value":"0xde0b6b3a7640000"}`,
	})
	defer srv.Close()

	tx, err := NewRPCClient(srv.URL).TxByHash(context.Background(), "0xabc")
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, "1000000000000000000", tx.Value.String())
	assert.Equal(t, "0x02", tx.To)
}

func TestRPCClientError(t *testing.T) {
	srv := rpcServer(t, map[string]string{})
	defer srv.Close()

	_, err := NewRPCClient(srv.URL).LatestHeight(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "method not found")
}

type fakeClient struct {
	height int64
	err    error
	calls  int
}

func (f *fakeClient) LatestHeight(ctx context.Context) (int64, error) {
	f.calls++
	return f.height, f.err
}

func (f *fakeClient) Receipt(ctx context.Context, txHash string) (*Receipt, error) {
	f.calls++
	return nil, f.err
}

func (f *fakeClient) TxByHash(ctx context.Context, txHash string) (*Tx, error) {
	f.calls++
	return nil, f.err
}

func TestMultiRPCRotatesAfterThreshold(t *testing.T) {
	bad := &fakeClient{err: errors.New("down")}
	good := &fakeClient{height: 42}
	m := newMulti([]Client{bad, good}, 2)

	_, err := m.LatestHeight(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, good.calls)

	h, err := m.LatestHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), h)
	assert.Equal(t, 2, bad.calls)

	_, err = m.LatestHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, bad.calls)
}

func TestParseHead(t *testing.T) {
	h, ok, err := ParseHead([]byte(`{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":"0x1","result":{"number":"0xff"}}}`))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(255), h)

	_, ok, err = ParseHead([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x1"}`))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWSEndpoints(t *testing.T) {
	assert.Equal(t, "wss://rpc.example.org", DefaultWSEndpoint("https://rpc.example.org/"))
	assert.Equal(t, "ws://localhost:8545", DefaultWSEndpoint("http://localhost:8545"))
	assert.Equal(t, "", DefaultWSEndpoint("localhost:8545"))

	assert.Equal(t, []string{"ws://a"}, WSEndpoints([]string{" ws://a/ ", "ws://a"}, []string{"http://b"}))
	assert.Equal(t, []string{"ws://b"}, WSEndpoints(nil, []string{"http://b"}))
}
