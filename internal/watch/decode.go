package watch

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"safeScope/internal/dex"
	"safeScope/internal/model"
)

// Event is one decoded, dispatchable chain event. Exactly one of the
// payload fields is set.
type Event struct {
	Block model.BlockContext
	Kind  string

	Touched  *model.PositionTouched
	Swap     *model.PoolSwapped
	Transfer *model.OwnershipTransferred
	Native   *model.NativeValueMoved
	Token    *model.TokenTransferred
}

// Decoder routes raw logs by emitting contract and topic0 into typed
// events. Pool membership is dynamic: tracked pools grow as positions are
// discovered, so the pool set is injected per call.
type Decoder struct {
	managers      map[common.Address]model.Protocol
	fundingTokens map[common.Address]struct{}
	safe          common.Address

	increaseID common.Hash
	decreaseID common.Hash
	collectID  common.Hash
	transferID common.Hash
	swapID     common.Hash
	receivedID common.Hash
	executedID common.Hash
}

func NewDecoder(managers map[common.Address]model.Protocol, fundingTokens []common.Address, safe common.Address) (*Decoder, error) {
	managerABI, err := dex.UniV3ManagerABI()
	if err != nil {
		return nil, err
	}
	poolABI, err := dex.PoolABI()
	if err != nil {
		return nil, err
	}
	safeABI, err := dex.SafeABI()
	if err != nil {
		return nil, err
	}

	tokens := make(map[common.Address]struct{}, len(fundingTokens))
	for _, token := range fundingTokens {
		tokens[token] = struct{}{}
	}

	return &Decoder{
		managers:      managers,
		fundingTokens: tokens,
		safe:          safe,
		increaseID:    managerABI.Events["IncreaseLiquidity"].ID,
		decreaseID:    managerABI.Events["DecreaseLiquidity"].ID,
		collectID:     managerABI.Events["Collect"].ID,
		transferID:    managerABI.Events["Transfer"].ID,
		swapID:        poolABI.Events["Swap"].ID,
		receivedID:    safeABI.Events["SafeReceived"].ID,
		executedID:    safeABI.Events["ExecutionSuccess"].ID,
	}, nil
}

// Topic0 returns every event signature the watcher filters on.
func (d *Decoder) Topic0() []common.Hash {
	return []common.Hash{
		d.increaseID, d.decreaseID, d.collectID, d.transferID,
		d.swapID, d.receivedID, d.executedID,
	}
}

// Decode converts one log into a typed event. The boolean is false when the
// log is well-formed but not relevant (unknown contract, unmatched topic,
// zero-payment execution). Malformed logs return an error.
func (d *Decoder) Decode(log types.Log, trackedPools map[common.Address]struct{}) (Event, bool, error) {
	if len(log.Topics) == 0 {
		return Event{}, false, nil
	}
	topic0 := log.Topics[0]

	if protocol, ok := d.managers[log.Address]; ok {
		return d.decodeManager(log, protocol, topic0)
	}
	if log.Address == d.safe {
		return d.decodeSafe(log, topic0)
	}
	if _, ok := d.fundingTokens[log.Address]; ok && topic0 == d.transferID {
		return d.decodeTokenTransfer(log)
	}
	if _, ok := trackedPools[log.Address]; ok && topic0 == d.swapID {
		return Event{
			Kind: "pool_swap",
			Swap: &model.PoolSwapped{Pool: model.CanonicalAddress(log.Address.Hex())},
		}, true, nil
	}
	return Event{}, false, nil
}

func (d *Decoder) decodeManager(log types.Log, protocol model.Protocol, topic0 common.Hash) (Event, bool, error) {
	switch topic0 {
	case d.increaseID, d.decreaseID, d.collectID:
		if len(log.Topics) < 2 {
			return Event{}, false, fmt.Errorf("liquidity event missing token id topic")
		}
		kind := "increase"
		if topic0 == d.decreaseID {
			kind = "decrease"
		} else if topic0 == d.collectID {
			kind = "collect"
		}
		return Event{
			Kind: "position_" + kind,
			Touched: &model.PositionTouched{
				Protocol: protocol,
				TokenID:  new(big.Int).SetBytes(log.Topics[1].Bytes()),
				Kind:     kind,
			},
		}, true, nil

	case d.transferID:
		// ERC-721 Transfer: all three arguments indexed.
		if len(log.Topics) < 4 {
			return Event{}, false, fmt.Errorf("nft transfer missing topics")
		}
		return Event{
			Kind: "ownership_transfer",
			Transfer: &model.OwnershipTransferred{
				Protocol: protocol,
				TokenID:  new(big.Int).SetBytes(log.Topics[3].Bytes()),
				From:     topicAddress(log.Topics[1]),
				To:       topicAddress(log.Topics[2]),
			},
		}, true, nil
	}
	return Event{}, false, nil
}

func (d *Decoder) decodeSafe(log types.Log, topic0 common.Hash) (Event, bool, error) {
	switch topic0 {
	case d.receivedID:
		if len(log.Topics) < 2 || len(log.Data) < 32 {
			return Event{}, false, fmt.Errorf("malformed SafeReceived log")
		}
		return Event{
			Kind: "native_in",
			Native: &model.NativeValueMoved{
				Sender:    topicAddress(log.Topics[1]),
				Recipient: model.CanonicalAddress(d.safe.Hex()),
				Amount:    new(big.Int).SetBytes(log.Data[:32]),
			},
		}, true, nil

	case d.executedID:
		// Data is (bytes32 txHash, uint256 payment). The payment recipient
		// is the relayer and is not recoverable from the log.
		if len(log.Data) < 64 {
			return Event{}, false, fmt.Errorf("malformed ExecutionSuccess log")
		}
		payment := new(big.Int).SetBytes(log.Data[32:64])
		if payment.Sign() == 0 {
			return Event{}, false, nil
		}
		return Event{
			Kind: "native_out",
			Native: &model.NativeValueMoved{
				Sender:    model.CanonicalAddress(d.safe.Hex()),
				Recipient: model.CanonicalAddress(common.Address{}.Hex()),
				Amount:    payment,
			},
		}, true, nil
	}
	return Event{}, false, nil
}

func (d *Decoder) decodeTokenTransfer(log types.Log) (Event, bool, error) {
	// ERC-20 Transfer: value in data.
	if len(log.Topics) < 3 || len(log.Data) < 32 {
		return Event{}, false, fmt.Errorf("malformed erc20 transfer log")
	}
	return Event{
		Kind: "token_transfer",
		Token: &model.TokenTransferred{
			Token:  model.CanonicalAddress(log.Address.Hex()),
			From:   topicAddress(log.Topics[1]),
			To:     topicAddress(log.Topics[2]),
			Amount: new(big.Int).SetBytes(log.Data[:32]),
		},
	}, true, nil
}

func topicAddress(topic common.Hash) string {
	return model.CanonicalAddress(common.BytesToAddress(topic.Bytes()).Hex())
}
