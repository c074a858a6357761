package payments

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"BookingSettlement/internal/chain"
	"BookingSettlement/internal/models"
)

const (
	host   = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	tenant = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
)

func TestCheck(t *testing.T) {
	addrs := chain.AddressValidator{Format: chain.FormatEVM}
	intent := &models.PaymentIntent{RecipientAddress: host, SenderAddress: tenant, Amount: "1000"}
	mined := &chain.Receipt{BlockNumber: 10, Success: true}

	v, _ := Check(intent, nil, nil, addrs)
	assert.Equal(t, Pending, v)

	v, _ = Check(intent, &chain.Tx{From: tenant, To: host, Value: big.NewInt(1000)}, mined, addrs)
	assert.Equal(t, Valid, v)

	// lower-case hex from the node is still the same account
	v, _ = Check(intent, &chain.Tx{From: tenant, To: "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", Value: big.NewInt(1001)}, mined, addrs)
	assert.Equal(t, Valid, v)

	v, reason := Check(intent, &chain.Tx{From: tenant, To: host, Value: big.NewInt(999)}, mined, addrs)
	assert.Equal(t, Invalid, v)
	assert.Contains(t, reason, "underpaid")

	v, reason = Check(intent, &chain.Tx{From: tenant, To: tenant, Value: big.NewInt(1000)}, mined, addrs)
	assert.Equal(t, Invalid, v)
	assert.Contains(t, reason, "recipient")

	v, reason = Check(intent, &chain.Tx{From: tenant, To: host, Value: big.NewInt(1000)}, &chain.Receipt{BlockNumber: 10}, addrs)
	assert.Equal(t, Invalid, v)
	assert.Equal(t, "transaction reverted", reason)
}

func TestDepth(t *testing.T) {
	assert.Equal(t, int64(0), Depth(100, nil))
	assert.Equal(t, int64(1), Depth(10, &chain.Receipt{BlockNumber: 10}))
	assert.Equal(t, int64(12), Depth(21, &chain.Receipt{BlockNumber: 10}))
	assert.Equal(t, int64(0), Depth(9, &chain.Receipt{BlockNumber: 10}))
}
