package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Client is the read-only view of the chain the watcher needs.
type Client interface {
	LatestHeight(ctx context.Context) (int64, error)
	Receipt(ctx context.Context, txHash string) (*Receipt, error)
	TxByHash(ctx context.Context, txHash string) (*Tx, error)
}

// Receipt is nil-returned while the transaction is not yet mined.
type Receipt struct {
	TxHash      string
	BlockNumber int64
	Success     bool
}

type Tx struct {
	Hash  string
	From  string
	To    string
	Value *big.Int
}

// RPCClient speaks Ethereum JSON-RPC over HTTP.
type RPCClient struct {
	baseURL string
	client  *http.Client
	nextID  atomic.Int64
}

func NewRPCClient(baseURL string) *RPCClient {
	return &RPCClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *RPCClient) LatestHeight(ctx context.Context) (int64, error) {
	var out string
	if err := c.call(ctx, "eth_blockNumber", []any{}, &out); err != nil {
		return 0, err
	}
	return parseHexInt64(out)
}

func (c *RPCClient) Receipt(ctx context.Context, txHash string) (*Receipt, error) {
	var raw *rpcReceipt
	if err := c.call(ctx, "eth_getTransactionReceipt", []any{txHash}, &raw); err != nil {
		return nil, err
	}
	if raw == nil || raw.BlockNumber == "" {
		return nil, nil
	}
	height, err := parseHexInt64(raw.BlockNumber)
	if err != nil {
		return nil, err
	}
	return &Receipt{
		TxHash:      raw.TransactionHash,
		BlockNumber: height,
		Success:     raw.Status == "0x1",
	}, nil
}

func (c *RPCClient) TxByHash(ctx context.Context, txHash string) (*Tx, error) {
	var raw *rpcTx
	if err := c.call(ctx, "eth_getTransactionByHash", []any{txHash}, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	value, ok := new(big.Int).SetString(strings.TrimPrefix(raw.Value, "0x"), 16)
	if !ok {
		return nil, fmt.Errorf("invalid tx value %q", raw.Value)
	}
	return &Tx{Hash: raw.Hash, From: raw.From, To: raw.To, Value: value}, nil
}

func (c *RPCClient) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		if s := strings.TrimSpace(string(msg)); s != "" {
			return fmt.Errorf("rpc http status %d: %s", resp.StatusCode, s)
		}
		return fmt.Errorf("rpc http status %d", resp.StatusCode)
	}

	var env rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return err
	}
	if env.Error != nil {
		return fmt.Errorf("rpc error %d: %s", env.Error.Code, env.Error.Message)
	}
	if len(env.Result) == 0 {
		return errors.New("rpc response has no result")
	}
	return json.Unmarshal(env.Result, out)
}

func parseHexInt64(v string) (int64, error) {
	if v == "" {
		return 0, errors.New("empty hex quantity")
	}
	return strconv.ParseInt(strings.TrimPrefix(v, "0x"), 16, 64)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcReceipt struct {
	TransactionHash string `json:"transactionHash"`
	BlockNumber     string `json:"blockNumber"`
	Status          string `json:"status"`
}

type rpcTx struct {
	Hash  string `json:"hash"`
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value"`
}
