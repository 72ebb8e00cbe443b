package trading

import (
	"context"
	"errors"
	"fmt"

	"launchpad/internal/chain"
	"launchpad/internal/domain"
	"launchpad/internal/observability"
	"launchpad/internal/storage"

	"github.com/sirupsen/logrus"
)

// SettleRequest carries a signed transaction payload for settlement. The
// payload is opaque: amounts are taken from the confirmed trade event, never
// from the client.
type SettleRequest struct {
	Mint    string `json:"mint"`
	Payload string `json:"payload"` // base64 signed transaction
}

// SettleResult is the outcome of a settlement.
type SettleResult struct {
	Signature string
	// Recorded is false when the transaction confirmed but its trade event
	// could not be verified; reserves were left untouched and the watcher
	// reconciles the gap later.
	Recorded bool
	// Duplicate is true when the signature was already settled; the
	// original trade is returned.
	Duplicate bool
	Trade     *domain.Trade
}

// Settle submits a signed payload, waits for confirmation, and commits the
// confirmed trade event atomically: reserves, graduation latch, and trade row
// move together or not at all. Settling the same signature twice is an
// idempotent success.
func (s *Service) Settle(ctx context.Context, req *SettleRequest) (*SettleResult, error) {
	if req == nil || req.Payload == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrValidation)
	}
	if _, err := s.assets.GetByMint(ctx, req.Mint); err != nil {
		return nil, err
	}

	started := s.now()

	signature, err := s.chain.SendTransaction(ctx, req.Payload)
	if err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}

	log := s.logger.WithFields(logrus.Fields{
		"mint":      req.Mint,
		"signature": signature,
	})

	if err := s.chain.ConfirmTransaction(ctx, signature, s.confirmTimeout); err != nil {
		var execErr *chain.ExecutionError
		if errors.As(err, &execErr) {
			observability.RecordExecutionFailure()
			log.WithField("detail", execErr.Detail).Warn("transaction failed on-chain")
		}
		return nil, fmt.Errorf("confirm transaction: %w", err)
	}

	// Duplicate check before taking the asset lock: replays never contend
	// with live settlements.
	if existing, err := s.trades.GetBySignature(ctx, signature); err == nil {
		observability.RecordDuplicateSettlement()
		log.Info("settlement replayed, returning original trade")
		return &SettleResult{Signature: signature, Recorded: true, Duplicate: true, Trade: existing}, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("check settled signature: %w", err)
	}

	tx, err := s.chain.GetTransaction(ctx, signature)
	if err != nil {
		return nil, fmt.Errorf("fetch transaction: %w", err)
	}

	var event *chain.TradeEvent
	if tx != nil && tx.Meta != nil {
		event = chain.ParseTradeEvent(tx.Meta.LogMessages)
	}
	if event == nil || event.Mint != req.Mint {
		observability.RecordSkippedRecording()
		log.Warn("confirmed transaction carries no verifiable trade event, skipping recording")
		return &SettleResult{Signature: signature}, nil
	}

	trade, err := s.recordEvent(ctx, signature, tx.Slot, tx.BlockTime, event)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// Lost the race against a concurrent replay; the committed
			// trade is authoritative.
			if existing, lookupErr := s.trades.GetBySignature(ctx, signature); lookupErr == nil {
				observability.RecordDuplicateSettlement()
				return &SettleResult{Signature: signature, Recorded: true, Duplicate: true, Trade: existing}, nil
			}
		}
		return nil, err
	}

	observability.RecordTradeSettled(string(trade.Side))
	observability.RecordSettlementLatency(s.now().Sub(started).Seconds())
	log.WithFields(logrus.Fields{
		"side":  trade.Side,
		"quote": trade.QuoteAmount,
		"base":  trade.BaseAmount,
	}).Info("trade settled")

	return &SettleResult{Signature: signature, Recorded: true, Trade: trade}, nil
}

// Reconcile applies a trade event observed by the log watcher. It repairs
// settlements that confirmed without a verifiable event: if the signature is
// already recorded this is a no-op.
func (s *Service) Reconcile(ctx context.Context, note *chain.LogNotification) error {
	if note == nil || note.Err != nil {
		return nil
	}

	event := chain.ParseTradeEvent(note.Logs)
	if event == nil {
		return nil
	}

	if _, err := s.trades.GetBySignature(ctx, note.Signature); err == nil {
		return nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("check settled signature: %w", err)
	}

	trade, err := s.recordEvent(ctx, note.Signature, note.Slot, event.Timestamp, event)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) || errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}

	observability.RecordTradeSettled(string(trade.Side))
	s.logger.WithFields(logrus.Fields{
		"mint":      trade.Mint,
		"signature": trade.Signature,
	}).Info("trade reconciled from watcher")

	return nil
}

// recordEvent commits a confirmed trade event: reserves move by the event's
// amounts, graduation latches when the threshold is crossed, and the trade
// row is inserted, all in one transaction.
func (s *Service) recordEvent(ctx context.Context, signature string, slot, blockTime int64, event *chain.TradeEvent) (*domain.Trade, error) {
	side := domain.SideSell
	if event.IsBuy {
		side = domain.SideBuy
	}

	timestamp := event.Timestamp
	if timestamp == 0 {
		timestamp = blockTime
	}
	timestampMs := timestamp * 1000
	nowMs := s.now().UnixMilli()

	var graduated bool
	trade, err := s.assets.ApplyTrade(ctx, event.Mint, func(asset *domain.Asset) (*domain.Trade, error) {
		var (
			next domain.Reserves
			err  error
		)
		if event.IsBuy {
			quoteToCurve := event.QuoteAmount - event.ProtocolFee - event.CreatorFee
			next, err = asset.Reserves.ApplyBuy(
				event.VirtualBaseReserves, event.VirtualQuoteReserves,
				quoteToCurve, event.BaseAmount)
		} else {
			quoteFromCurve := event.QuoteAmount + event.ProtocolFee + event.CreatorFee
			next, err = asset.Reserves.ApplySell(
				event.VirtualBaseReserves, event.VirtualQuoteReserves,
				quoteFromCurve, event.BaseAmount)
		}
		if err != nil {
			return nil, err
		}
		asset.Reserves = next

		if !asset.Graduated && next.RealQuote >= domain.GraduationThreshold {
			asset.Graduated = true
			asset.GraduatedAt = &timestampMs
			graduated = true
		}

		return &domain.Trade{
			Signature:         signature,
			Mint:              event.Mint,
			Trader:            event.Trader,
			Side:              side,
			QuoteAmount:       event.QuoteAmount,
			BaseAmount:        event.BaseAmount,
			Price:             tradePrice(event),
			ProtocolFee:       event.ProtocolFee,
			CreatorFee:        event.CreatorFee,
			VirtualQuoteAfter: event.VirtualQuoteReserves,
			VirtualBaseAfter:  event.VirtualBaseReserves,
			Slot:              slot,
			Timestamp:         timestampMs,
			CreatedAt:         nowMs,
		}, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrReserveViolation) {
			observability.RecordReserveViolation()
			s.logger.WithFields(logrus.Fields{
				"mint":      event.Mint,
				"signature": signature,
			}).WithError(err).Error("settlement aborted by reserve check")
		}
		return nil, err
	}

	if graduated {
		observability.RecordGraduation()
		s.logger.WithField("mint", event.Mint).Info("curve graduated")
	}

	s.afterCommit(ctx, trade)

	return trade, nil
}

// afterCommit fans the settled trade out to market data. Failures are logged
// and never unwind the settlement.
func (s *Service) afterCommit(ctx context.Context, trade *domain.Trade) {
	if s.aggregator != nil {
		if err := s.aggregator.RecordTrade(ctx, trade); err != nil {
			s.logger.WithError(err).WithField("signature", trade.Signature).Warn("candle update failed")
		} else {
			for _, interval := range domain.Intervals() {
				observability.RecordCandleUpdate(string(interval))
			}
		}
	}

	if s.ticks != nil {
		tick := &domain.Tick{
			Mint:        trade.Mint,
			Signature:   trade.Signature,
			Side:        trade.Side,
			Price:       trade.Price,
			QuoteVolume: float64(trade.QuoteAmount),
			BaseVolume:  float64(trade.BaseAmount),
			Slot:        trade.Slot,
			Timestamp:   trade.Timestamp,
		}
		if err := s.ticks.InsertBulk(ctx, []*domain.Tick{tick}); err != nil {
			s.logger.WithError(err).WithField("signature", trade.Signature).Warn("tick archive failed")
		}
	}
}

// tradePrice derives the execution price from the curve leg of the event:
// the quote that actually moved on the curve divided by the base amount.
func tradePrice(event *chain.TradeEvent) float64 {
	if event.BaseAmount == 0 {
		return 0
	}
	var curveQuote uint64
	if event.IsBuy {
		curveQuote = event.QuoteAmount - event.ProtocolFee - event.CreatorFee
	} else {
		curveQuote = event.QuoteAmount + event.ProtocolFee + event.CreatorFee
	}
	return float64(curveQuote) / float64(event.BaseAmount)
}
