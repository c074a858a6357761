package chain

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gorilla/websocket"
)

// WSClient subscribes to new block headers over eth_subscribe.
type WSClient struct {
	Endpoint string
	Conn     *websocket.Conn
}

func NewWSClient(endpoint string) *WSClient {
	return &WSClient{Endpoint: endpoint}
}

func (c *WSClient) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, c.Endpoint, nil)
	if err != nil {
		return err
	}
	c.Conn = conn
	return nil
}

func (c *WSClient) Close() {
	if c.Conn != nil {
		_ = c.Conn.Close()
	}
}

func (c *WSClient) SubscribeNewHeads() error {
	return c.Conn.WriteJSON(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_subscribe",
		Params:  []any{"newHeads"},
	})
}

func (c *WSClient) Read() ([]byte, error) {
	_, msg, err := c.Conn.ReadMessage()
	return msg, err
}

// ParseHead extracts the block height from a newHeads notification. The
// subscription acknowledgement and other messages return ok=false.
func ParseHead(msg []byte) (int64, bool, error) {
	var env struct {
		Method string `json:"method"`
		Params struct {
			Result struct {
				Number string `json:"number"`
			} `json:"result"`
		} `json:"params"`
		Error *rpcError `json:"error"`
	}
	if err := json.Unmarshal(msg, &env); err != nil {
		return 0, false, err
	}
	if env.Error != nil {
		return 0, false, errors.New(env.Error.Message)
	}
	if env.Method != "eth_subscription" || env.Params.Result.Number == "" {
		return 0, false, nil
	}
	height, err := parseHexInt64(env.Params.Result.Number)
	if err != nil {
		return 0, false, err
	}
	return height, true, nil
}
