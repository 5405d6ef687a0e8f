package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
)

// TxType selects which gas fields of an OnchainTransaction are meaningful.
type TxType uint8

const (
	TxTypeLegacy     TxType = types.LegacyTxType
	TxTypeDynamicFee TxType = types.DynamicFeeTxType
)

// GasSettings carries either a legacy gas price or the EIP-1559 fee pair.
type GasSettings struct {
	Limit                uint64
	Price                *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// OnchainTransaction is one logical transaction. Gas-bumped resubmissions share
// the same ID but each broadcast lands in Responses with its own hash.
type OnchainTransaction struct {
	ID      uuid.UUID
	Context map[string]string

	To    *common.Address
	Data  []byte
	Value *big.Int

	Nonce uint64
	Type  TxType
	Gas   GasSettings

	Responses []*types.Transaction
	Receipt   *types.Receipt
}

func NewOnchainTransaction(to *common.Address, data []byte, value *big.Int) *OnchainTransaction {
	return &OnchainTransaction{
		ID:      uuid.New(),
		Context: make(map[string]string),
		To:      to,
		Data:    data,
		Value:   value,
		Type:    TxTypeLegacy,
	}
}

// Hash is the receipt hash once mined, otherwise the hash of the latest broadcast.
func (t *OnchainTransaction) Hash() common.Hash {
	if t.Receipt != nil {
		return t.Receipt.TxHash
	}
	if len(t.Responses) == 0 {
		return common.Hash{}
	}
	return t.Responses[len(t.Responses)-1].Hash()
}

// Hashes lists every broadcast hash, oldest first, without duplicates.
func (t *OnchainTransaction) Hashes() []common.Hash {
	seen := make(map[common.Hash]struct{}, len(t.Responses))
	out := make([]common.Hash, 0, len(t.Responses))
	for _, r := range t.Responses {
		if r == nil {
			continue
		}
		h := r.Hash()
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}

// GasFee is the per-gas price the sender committed to.
func (t *OnchainTransaction) GasFee() *big.Int {
	var fee *big.Int
	if t.Type == TxTypeDynamicFee {
		fee = t.Gas.MaxFeePerGas
	} else {
		fee = t.Gas.Price
	}
	if fee == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(fee)
}

func (t *OnchainTransaction) AddResponse(tx *types.Transaction) {
	t.Responses = append(t.Responses, tx)
}

// Unsigned builds the go-ethereum transaction for the current nonce and gas settings.
func (t *OnchainTransaction) Unsigned(chainID *big.Int) *types.Transaction {
	value := t.Value
	if value == nil {
		value = new(big.Int)
	}
	if t.Type == TxTypeDynamicFee {
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     t.Nonce,
			GasTipCap: orZero(t.Gas.MaxPriorityFeePerGas),
			GasFeeCap: orZero(t.Gas.MaxFeePerGas),
			Gas:       t.Gas.Limit,
			To:        t.To,
			Value:     value,
			Data:      t.Data,
		})
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    t.Nonce,
		GasPrice: orZero(t.Gas.Price),
		Gas:      t.Gas.Limit,
		To:       t.To,
		Value:    value,
		Data:     t.Data,
	})
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
