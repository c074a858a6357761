package chain

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// MultiRPCClient fails over between endpoints after failThreshold consecutive
// errors on the current one.
type MultiRPCClient struct {
	clients       []Client
	index         int
	failCount     int
	failThreshold int
	mu            sync.Mutex
}

func NewMultiRPCClient(endpoints []string, failThreshold int) (*MultiRPCClient, error) {
	list := sanitizeEndpoints(endpoints)
	if len(list) == 0 {
		return nil, errors.New("rpc endpoints is empty")
	}
	clients := make([]Client, 0, len(list))
	for _, ep := range list {
		clients = append(clients, NewRPCClient(ep))
	}
	return newMulti(clients, failThreshold), nil
}

func newMulti(clients []Client, failThreshold int) *MultiRPCClient {
	if failThreshold <= 0 {
		failThreshold = 3
	}
	return &MultiRPCClient{clients: clients, failThreshold: failThreshold}
}

func (m *MultiRPCClient) LatestHeight(ctx context.Context) (int64, error) {
	var out int64
	err := m.try(func(c Client) error {
		var err error
		out, err = c.LatestHeight(ctx)
		return err
	})
	return out, err
}

func (m *MultiRPCClient) Receipt(ctx context.Context, txHash string) (*Receipt, error) {
	var out *Receipt
	err := m.try(func(c Client) error {
		var err error
		out, err = c.Receipt(ctx, txHash)
		return err
	})
	return out, err
}

func (m *MultiRPCClient) TxByHash(ctx context.Context, txHash string) (*Tx, error) {
	var out *Tx
	err := m.try(func(c Client) error {
		var err error
		out, err = c.TxByHash(ctx, txHash)
		return err
	})
	return out, err
}

// try runs fn against each endpoint at most once, starting at the current one.
func (m *MultiRPCClient) try(fn func(Client) error) error {
	var lastErr error
	for attempts := 0; attempts < len(m.clients); attempts++ {
		client, idx := m.currentClient()
		err := fn(client)
		if err == nil {
			m.resetFailures(idx)
			return nil
		}
		lastErr = err
		m.noteFailure(idx)
		if len(m.clients) == 1 {
			break
		}
		if m.shouldRotate() {
			m.rotate()
			continue
		}
		break
	}
	return lastErr
}

func (m *MultiRPCClient) currentClient() (Client, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clients[m.index], m.index
}

func (m *MultiRPCClient) resetFailures(idx int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index == idx {
		m.failCount = 0
	}
}

func (m *MultiRPCClient) noteFailure(idx int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index == idx {
		m.failCount++
	}
}

func (m *MultiRPCClient) shouldRotate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failCount >= m.failThreshold
}

func (m *MultiRPCClient) rotate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = (m.index + 1) % len(m.clients)
	m.failCount = 0
}

func sanitizeEndpoints(endpoints []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		ep = strings.TrimSpace(ep)
		if ep == "" {
			continue
		}
		ep = strings.TrimRight(ep, "/")
		if _, ok := seen[ep]; ok {
			continue
		}
		seen[ep] = struct{}{}
		out = append(out, ep)
	}
	return out
}
