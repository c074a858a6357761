package payments

import (
	"fmt"
	"math/big"

	"BookingSettlement/internal/chain"
	"BookingSettlement/internal/models"
)

// Verdict is the watcher's reading of a submitted transaction.
type Verdict int

const (
	// Pending means the transaction is not mined yet.
	Pending Verdict = iota
	Valid
	Invalid
)

// Check matches a mined transaction against the intent it claims to settle.
// Reason is set for Invalid verdicts.
func Check(intent *models.PaymentIntent, tx *chain.Tx, receipt *chain.Receipt, addrs chain.AddressValidator) (Verdict, string) {
	if receipt == nil || tx == nil {
		return Pending, ""
	}
	if !receipt.Success {
		return Invalid, "transaction reverted"
	}
	if addrs.Normalize(tx.To) != addrs.Normalize(intent.RecipientAddress) {
		return Invalid, fmt.Sprintf("recipient mismatch: got %s", tx.To)
	}
	if intent.SenderAddress != "" && tx.From != "" && addrs.Normalize(tx.From) != addrs.Normalize(intent.SenderAddress) {
		return Invalid, fmt.Sprintf("sender mismatch: got %s", tx.From)
	}
	want, ok := new(big.Int).SetString(intent.Amount, 10)
	if !ok {
		return Invalid, fmt.Sprintf("intent amount %q is not an integer", intent.Amount)
	}
	if tx.Value == nil || tx.Value.Cmp(want) < 0 {
		return Invalid, fmt.Sprintf("underpaid: got %v want %s", tx.Value, intent.Amount)
	}
	return Valid, ""
}

// Depth is the number of blocks including the receipt's own block.
func Depth(latest int64, receipt *chain.Receipt) int64 {
	if receipt == nil || latest < receipt.BlockNumber {
		return 0
	}
	return latest - receipt.BlockNumber + 1
}
