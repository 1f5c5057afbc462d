package contract

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
)

// ABI fragments for the entry points this client uses.
const headsUpABI = `[
{"name":"getTableID","type":"function","stateMutability":"view","inputs":[{"name":"p0","type":"address"},{"name":"p1","type":"address"}],"outputs":[{"name":"","type":"bytes32"}]},
{"name":"getTableTransactionHash","type":"function","stateMutability":"view","inputs":[{"name":"tableID","type":"bytes32"},{"name":"sessionID","type":"bytes32"},{"name":"payload","type":"bytes"}],"outputs":[{"name":"","type":"bytes32"}]},
{"name":"getTableOverview","type":"function","stateMutability":"view","inputs":[{"name":"tableID","type":"bytes32"}],"outputs":[{"name":"players","type":"address[2]"},{"name":"deposits","type":"uint256[2]"}]},
{"name":"getTableSettlement","type":"function","stateMutability":"view","inputs":[{"name":"tableID","type":"bytes32"}],"outputs":[{"name":"disputeType","type":"uint8"},{"name":"proposer","type":"address"},{"name":"deadline","type":"uint256"},{"name":"data","type":"bytes"}]},
{"name":"getTableState","type":"function","stateMutability":"view","inputs":[{"name":"tableID","type":"bytes32"}],"outputs":[{"name":"","type":"bytes"}]},
{"name":"openTable","type":"function","stateMutability":"payable","inputs":[{"name":"players","type":"address[2]"},{"name":"openData","type":"bytes"},{"name":"v","type":"uint8[2]"},{"name":"r","type":"bytes32[2]"},{"name":"s","type":"bytes32[2]"},{"name":"sessionID","type":"bytes32"}],"outputs":[]},
{"name":"joinTable","type":"function","stateMutability":"payable","inputs":[{"name":"players","type":"address[2]"}],"outputs":[]},
{"name":"verifyHalfSignedStateData","type":"function","stateMutability":"view","inputs":[{"name":"tableID","type":"bytes32"},{"name":"data","type":"bytes"},{"name":"signer","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
{"name":"proposeSettlement","type":"function","stateMutability":"nonpayable","inputs":[{"name":"tableID","type":"bytes32"},{"name":"settlement","type":"bytes"},{"name":"v","type":"uint8"},{"name":"r","type":"bytes32"},{"name":"s","type":"bytes32"}],"outputs":[]},
{"name":"claimExpiredTable","type":"function","stateMutability":"nonpayable","inputs":[{"name":"tableID","type":"bytes32"}],"outputs":[]},
{"name":"claimExpiredSettlement","type":"function","stateMutability":"nonpayable","inputs":[{"name":"tableID","type":"bytes32"}],"outputs":[]}
]`

const pokerABI = `[
{"name":"isValidStateTransition","type":"function","stateMutability":"view","inputs":[{"name":"prevState","type":"bytes"},{"name":"newState","type":"bytes"},{"name":"players","type":"address[2]"},{"name":"stake","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

// EthTable is the ethclient-backed Table implementation.
type EthTable struct {
	client    *ethclient.Client
	headsUp   common.Address
	poker     common.Address
	headsABI  abi.ABI
	pokerABI  abi.ABI
	key       *ecdsa.PrivateKey
	from      common.Address
	chainID   *big.Int
	gasLimit  uint64
}

// Dial connects to the ledger endpoint and binds the two contracts.
func Dial(ctx context.Context, endpoint string, headsUp, poker common.Address, signer *Signer, gasLimit uint64) (*EthTable, error) {
	client, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "contract: dial %s", endpoint)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "contract: chain id")
	}
	hABI, err := abi.JSON(strings.NewReader(headsUpABI))
	if err != nil {
		return nil, errors.Wrap(err, "contract: heads-up abi")
	}
	pABI, err := abi.JSON(strings.NewReader(pokerABI))
	if err != nil {
		return nil, errors.Wrap(err, "contract: poker abi")
	}
	return &EthTable{
		client:   client,
		headsUp:  headsUp,
		poker:    poker,
		headsABI: hABI,
		pokerABI: pABI,
		key:      signer.Key(),
		from:     signer.Address(),
		chainID:  chainID,
		gasLimit: gasLimit,
	}, nil
}

func (t *EthTable) call(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "contract: pack %s", method)
	}
	out, err := t.client.CallContract(ctx, ethereum.CallMsg{From: t.from, To: &to, Data: data}, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "contract: call %s", method)
	}
	vals, err := contractABI.Unpack(method, out)
	return vals, errors.Wrapf(err, "contract: unpack %s", method)
}

func (t *EthTable) transact(ctx context.Context, method string, value *big.Int, args ...interface{}) ([]byte, error) {
	data, err := t.headsABI.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "contract: pack %s", method)
	}
	nonce, err := t.client.PendingNonceAt(ctx, t.from)
	if err != nil {
		return nil, errors.Wrap(err, "contract: nonce")
	}
	gasPrice, err := t.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "contract: gas price")
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &t.headsUp,
		Value:    value,
		Gas:      t.gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(t.chainID), t.key)
	if err != nil {
		return nil, errors.Wrap(err, "contract: sign tx")
	}
	if err := t.client.SendTransaction(ctx, signed); err != nil {
		return nil, errors.Wrapf(err, "contract: send %s", method)
	}
	hash := signed.Hash()
	return hash[:], nil
}

func (t *EthTable) TableID(ctx context.Context, p0, p1 common.Address) ([32]byte, error) {
	vals, err := t.call(ctx, t.headsUp, t.headsABI, "getTableID", p0, p1)
	if err != nil {
		return [32]byte{}, err
	}
	return vals[0].([32]byte), nil
}

func (t *EthTable) TransactionHash(ctx context.Context, tableID, sessionID [32]byte, payload []byte) (common.Hash, error) {
	vals, err := t.call(ctx, t.headsUp, t.headsABI, "getTableTransactionHash", tableID, sessionID, payload)
	if err != nil {
		return common.Hash{}, err
	}
	return common.Hash(vals[0].([32]byte)), nil
}

func (t *EthTable) Open(ctx context.Context, players [2]common.Address, terms Terms, sigs [2]Signature, sessionID [32]byte) ([]byte, error) {
	openData, err := EncodeOpenData(terms)
	if err != nil {
		return nil, err
	}
	var vs [2]uint8
	var rs, ss [2][32]byte
	for i, sig := range sigs {
		vs[i] = sig.V
		rs[i] = common.BigToHash(sig.R)
		ss[i] = common.BigToHash(sig.S)
	}
	value := new(big.Int).Add(terms.BuyIn, terms.Fee())
	return t.transact(ctx, "openTable", value, players, openData, vs, rs, ss, sessionID)
}

func (t *EthTable) Join(ctx context.Context, players [2]common.Address, buyIn *big.Int) ([]byte, error) {
	fee := new(big.Int).Div(buyIn, big.NewInt(100))
	value := new(big.Int).Add(buyIn, fee)
	return t.transact(ctx, "joinTable", value, players)
}

func (t *EthTable) Exists(ctx context.Context, tableID [32]byte) (bool, error) {
	_, err := t.call(ctx, t.headsUp, t.headsABI, "getTableOverview", tableID)
	if err != nil {
		// The overview call reverts until the table is open.
		return false, nil
	}
	return true, nil
}

func (t *EthTable) ValidTransition(ctx context.Context, prev, next []byte, players [2]common.Address, stake *big.Int) (bool, error) {
	vals, err := t.call(ctx, t.poker, t.pokerABI, "isValidStateTransition", prev, next, players, stake)
	if err != nil {
		return false, err
	}
	return vals[0].(bool), nil
}

func (t *EthTable) VerifyHalfSigned(ctx context.Context, tableID [32]byte, data []byte, signer common.Address) (bool, error) {
	vals, err := t.call(ctx, t.headsUp, t.headsABI, "verifyHalfSignedStateData", tableID, data, signer)
	if err != nil {
		// Revert means the fragment does not verify.
		return false, nil
	}
	return vals[0].(bool), nil
}

func (t *EthTable) ProposeSettlement(ctx context.Context, tableID [32]byte, settlement []byte, sig Signature) ([]byte, error) {
	return t.transact(ctx, "proposeSettlement", nil, tableID, settlement, sig.V, [32]byte(common.BigToHash(sig.R)), [32]byte(common.BigToHash(sig.S)))
}

func (t *EthTable) Settlement(ctx context.Context, tableID [32]byte) (SettlementInfo, error) {
	vals, err := t.call(ctx, t.headsUp, t.headsABI, "getTableSettlement", tableID)
	if err != nil {
		return SettlementInfo{}, ErrNoSettlement
	}
	deadline := vals[2].(*big.Int)
	return SettlementInfo{
		DisputeType: vals[0].(uint8),
		Proposer:    vals[1].(common.Address),
		Deadline:    deadline.Uint64(),
		Data:        vals[3].([]byte),
	}, nil
}

func (t *EthTable) State(ctx context.Context, tableID [32]byte) ([]byte, error) {
	vals, err := t.call(ctx, t.headsUp, t.headsABI, "getTableState", tableID)
	if err != nil {
		return nil, err
	}
	return vals[0].([]byte), nil
}

func (t *EthTable) ClaimExpiredTable(ctx context.Context, tableID [32]byte) ([]byte, error) {
	return t.transact(ctx, "claimExpiredTable", nil, tableID)
}

func (t *EthTable) ClaimExpiredSettlement(ctx context.Context, tableID [32]byte) ([]byte, error) {
	return t.transact(ctx, "claimExpiredSettlement", nil, tableID)
}

// HashForSigning is a convenience for callers that sign many payloads against
// the same table and session.
func HashForSigning(ctx context.Context, table Table, tableID, sessionID [32]byte, payload []byte) (common.Hash, error) {
	return table.TransactionHash(ctx, tableID, sessionID, payload)
}

var _ Table = (*EthTable)(nil)
