// Package extractor recovers the addresses of payment contracts deployed by
// a confirmed creation transaction.
package extractor

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/lmittmann/w3"

	"github.com/speedrun-hq/payflow/pkg/contracts"
	"github.com/speedrun-hq/payflow/pkg/logger"
	"github.com/speedrun-hq/payflow/pkg/txerror"
)

var creationEvents = []*w3.Event{
	contracts.EventPaymentCreated,
	contracts.EventRecurringPaymentCreated,
}

// Extractor decodes creation events from receipts
type Extractor struct {
	factory common.Address
	ignored map[common.Address]bool
	logger  logger.Logger
}

// New creates an extractor for a factory. Logs emitted by ignored addresses,
// such as the token being moved, never qualify as a fallback.
func New(factory common.Address, logger logger.Logger, ignore ...common.Address) *Extractor {
	ignored := map[common.Address]bool{factory: true}
	for _, addr := range ignore {
		ignored[addr] = true
	}
	return &Extractor{
		factory: factory,
		ignored: ignored,
		logger:  logger,
	}
}

// Extract returns the created addresses in log order. When no creation event
// decodes it falls back to distinct emitters that are neither the factory
// nor ignored. Fewer addresses than expected is an extraction_failed error.
func (e *Extractor) Extract(receipt *types.Receipt, expected int, ignore ...common.Address) ([]common.Address, error) {
	if receipt == nil {
		return nil, txerror.New(txerror.ExtractionFailed, "no receipt")
	}
	if expected < 1 {
		expected = 1
	}

	decoded := decodeCreated(receipt.Logs)
	if len(decoded) >= expected {
		return decoded, nil
	}
	if len(decoded) > 0 {
		return nil, txerror.New(txerror.ExtractionFailed, "expected %d created contracts, decoded %d", expected, len(decoded)).
			WithTx(receipt.TxHash)
	}

	e.logger.Warn("No creation event in %s, falling back to log emitters", receipt.TxHash.Hex())

	skip := make(map[common.Address]bool, len(e.ignored)+len(ignore))
	for addr := range e.ignored {
		skip[addr] = true
	}
	for _, addr := range ignore {
		skip[addr] = true
	}

	var emitters []common.Address
	for _, lg := range receipt.Logs {
		if lg == nil || skip[lg.Address] || lg.Address == (common.Address{}) {
			continue
		}
		skip[lg.Address] = true
		emitters = append(emitters, lg.Address)
	}

	if len(emitters) < expected {
		return nil, txerror.New(txerror.ExtractionFailed, "expected %d created contracts, found %d candidate logs", expected, len(emitters)).
			WithTx(receipt.TxHash)
	}
	return emitters[:expected], nil
}

// decodeCreated decodes every creation event, skipping duplicates
func decodeCreated(logs []*types.Log) []common.Address {
	var (
		out  []common.Address
		seen = make(map[common.Address]bool)
	)
	for _, lg := range logs {
		if lg == nil || len(lg.Topics) == 0 {
			continue
		}
		for _, event := range creationEvents {
			if lg.Topics[0] != event.Topic0 {
				continue
			}
			var payment, payer, beneficiary common.Address
			if err := event.DecodeArgs(lg, &payment, &payer, &beneficiary); err != nil {
				continue
			}
			if !seen[payment] {
				seen[payment] = true
				out = append(out, payment)
			}
		}
	}
	return out
}
