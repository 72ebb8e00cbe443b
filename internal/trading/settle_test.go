package trading

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"testing"
	"time"

	"launchpad/internal/candles"
	"launchpad/internal/chain"
	"launchpad/internal/chain/stub"
	"launchpad/internal/curve"
	"launchpad/internal/domain"
	"launchpad/internal/storage/memory"

	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	service *Service
	assets  *memory.AssetStore
	trades  *memory.TradeStore
	candles *memory.CandleStore
	ticks   *memory.TickStore
	chain   *stub.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	trades := memory.NewTradeStore()
	assets := memory.NewAssetStore(trades)
	candleStore := memory.NewCandleStore()
	ticks := memory.NewTickStore()
	client := stub.NewClient()

	agg := candles.New(candleStore, nil, logger)
	service := New(assets, trades, client, logger,
		WithAggregator(agg),
		WithTicks(ticks))

	return &testEnv{
		service: service,
		assets:  assets,
		trades:  trades,
		candles: candleStore,
		ticks:   ticks,
		chain:   client,
	}
}

func testAddress(seed byte) string {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = seed
	}
	return base58.Encode(raw)
}

// encodeTradeLog builds the "Program data: " log line for a trade event.
func encodeTradeLog(t *testing.T, event *chain.TradeEvent) string {
	t.Helper()

	mintRaw, err := base58.Decode(event.Mint)
	require.NoError(t, err)
	traderRaw, err := base58.Decode(event.Trader)
	require.NoError(t, err)

	data := make([]byte, 0, 8+121)
	data = append(data, 0xbd, 0xdb, 0x7f, 0xd3, 0x4e, 0xe6, 0x61, 0xee)
	data = append(data, mintRaw...)
	data = append(data, traderRaw...)
	if event.IsBuy {
		data = append(data, 1)
	} else {
		data = append(data, 0)
	}
	for _, v := range []uint64{
		event.QuoteAmount, event.BaseAmount,
		event.ProtocolFee, event.CreatorFee,
		event.VirtualQuoteReserves, event.VirtualBaseReserves,
		uint64(event.Timestamp),
	} {
		data = binary.LittleEndian.AppendUint64(data, v)
	}

	return "Program data: " + base64.StdEncoding.EncodeToString(data)
}

// buyEvent prices a buy against the asset's current reserves and returns the
// matching confirmation event.
func buyEvent(t *testing.T, asset *domain.Asset, trader string, quoteIn uint64, ts int64) *chain.TradeEvent {
	t.Helper()

	r := asset.Reserves
	q, err := curve.QuoteBuy(quoteIn, r.VirtualBase, r.VirtualQuote, domain.TotalFeeBps)
	require.NoError(t, err)

	return &chain.TradeEvent{
		Mint:                 asset.Mint,
		Trader:               trader,
		IsBuy:                true,
		QuoteAmount:          quoteIn,
		BaseAmount:           q.BaseOut,
		ProtocolFee:          q.Fee / 2,
		CreatorFee:           q.Fee - q.Fee/2,
		VirtualQuoteReserves: q.NewVirtualQuote,
		VirtualBaseReserves:  q.NewVirtualBase,
		Timestamp:            ts,
	}
}

func sellEvent(t *testing.T, asset *domain.Asset, trader string, baseIn uint64, ts int64) *chain.TradeEvent {
	t.Helper()

	r := asset.Reserves
	q, err := curve.QuoteSell(baseIn, r.VirtualBase, r.VirtualQuote, r.RealQuote, domain.TotalFeeBps)
	require.NoError(t, err)

	return &chain.TradeEvent{
		Mint:                 asset.Mint,
		Trader:               trader,
		IsBuy:                false,
		QuoteAmount:          q.QuoteOut,
		BaseAmount:           baseIn,
		ProtocolFee:          q.Fee / 2,
		CreatorFee:           q.Fee - q.Fee/2,
		VirtualQuoteReserves: q.NewVirtualQuote,
		VirtualBaseReserves:  q.NewVirtualBase,
		Timestamp:            ts,
	}
}

func (env *testEnv) createToken(t *testing.T, mint string) *domain.Asset {
	t.Helper()
	asset, err := env.service.CreateToken(context.Background(), &CreateTokenRequest{
		Mint:    mint,
		Creator: testAddress(2),
		Name:    "Test Token",
		Symbol:  "TEST",
		URI:     "https://example.com/meta.json",
	})
	require.NoError(t, err)
	return asset
}

func (env *testEnv) stageTransaction(t *testing.T, signature string, slot int64, event *chain.TradeEvent) {
	t.Helper()
	env.chain.SendResult = signature
	env.chain.Transactions[signature] = &chain.Transaction{
		Signature: signature,
		Slot:      slot,
		BlockTime: event.Timestamp,
		Meta: &chain.TransactionMeta{
			LogMessages: []string{
				"Program GMdG56oR3Qpc8NT6TwAtwdwNggxRADn6VAYbotLF1aM invoke [1]",
				encodeTradeLog(t, event),
				"Program GMdG56oR3Qpc8NT6TwAtwdwNggxRADn6VAYbotLF1aM success",
			},
		},
	}
}

func TestSettle_Buy(t *testing.T) {
	env := newTestEnv(t)
	mint := testAddress(1)
	trader := testAddress(3)
	asset := env.createToken(t, mint)

	ts := time.Now().Unix()
	event := buyEvent(t, asset, trader, 1_000_000_000, ts)
	env.stageTransaction(t, "sig-buy-1", 100, event)

	result, err := env.service.Settle(context.Background(), &SettleRequest{Mint: mint, Payload: "payload"})
	require.NoError(t, err)

	assert.True(t, result.Recorded)
	assert.False(t, result.Duplicate)
	require.NotNil(t, result.Trade)
	assert.Equal(t, domain.SideBuy, result.Trade.Side)
	assert.Equal(t, event.BaseAmount, result.Trade.BaseAmount)
	assert.Equal(t, ts*1000, result.Trade.Timestamp)

	// Reserves moved by the curve leg: gross in minus both fees.
	updated, err := env.assets.GetByMint(context.Background(), mint)
	require.NoError(t, err)
	quoteToCurve := event.QuoteAmount - event.ProtocolFee - event.CreatorFee
	assert.Equal(t, quoteToCurve, updated.Reserves.RealQuote)
	assert.Equal(t, domain.TotalSupply-event.BaseAmount, updated.Reserves.RealBase)
	assert.Equal(t, event.VirtualQuoteReserves, updated.Reserves.VirtualQuote)
	assert.False(t, updated.Graduated)

	// Market data fan-out: candle bucket and tick archive.
	c, err := env.candles.Get(context.Background(), mint, domain.Interval1m,
		domain.Interval1m.BucketStart(result.Trade.Timestamp))
	require.NoError(t, err)
	assert.Equal(t, 1, c.TradeCount)

	ticks, err := env.ticks.GetByTimeRange(context.Background(), mint, 0, result.Trade.Timestamp)
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	assert.Equal(t, "sig-buy-1", ticks[0].Signature)
}

func TestSettle_SellAfterBuy(t *testing.T) {
	env := newTestEnv(t)
	mint := testAddress(1)
	trader := testAddress(3)
	asset := env.createToken(t, mint)

	ts := time.Now().Unix()
	buy := buyEvent(t, asset, trader, 1_000_000_000, ts)
	env.stageTransaction(t, "sig-buy", 100, buy)
	_, err := env.service.Settle(context.Background(), &SettleRequest{Mint: mint, Payload: "p1"})
	require.NoError(t, err)

	after, err := env.assets.GetByMint(context.Background(), mint)
	require.NoError(t, err)

	sell := sellEvent(t, after, trader, buy.BaseAmount, ts+1)
	env.stageTransaction(t, "sig-sell", 101, sell)
	result, err := env.service.Settle(context.Background(), &SettleRequest{Mint: mint, Payload: "p2"})
	require.NoError(t, err)
	require.True(t, result.Recorded)
	assert.Equal(t, domain.SideSell, result.Trade.Side)

	// The full position was sold back: the curve's base inventory is whole
	// again, and the fee margin stays behind in the quote reserve.
	final, err := env.assets.GetByMint(context.Background(), mint)
	require.NoError(t, err)
	assert.Equal(t, domain.TotalSupply, final.Reserves.RealBase)
	assert.Less(t, final.Reserves.RealQuote, uint64(40_000_000))
}

func TestSettle_DuplicateIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	mint := testAddress(1)
	asset := env.createToken(t, mint)

	event := buyEvent(t, asset, testAddress(3), 1_000_000_000, time.Now().Unix())
	env.stageTransaction(t, "sig-dup", 100, event)

	first, err := env.service.Settle(context.Background(), &SettleRequest{Mint: mint, Payload: "p"})
	require.NoError(t, err)
	require.True(t, first.Recorded)

	second, err := env.service.Settle(context.Background(), &SettleRequest{Mint: mint, Payload: "p"})
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Trade.Signature, second.Trade.Signature)

	// Reserves moved exactly once.
	updated, err := env.assets.GetByMint(context.Background(), mint)
	require.NoError(t, err)
	quoteToCurve := event.QuoteAmount - event.ProtocolFee - event.CreatorFee
	assert.Equal(t, quoteToCurve, updated.Reserves.RealQuote)

	trades, err := env.trades.GetByMint(context.Background(), mint, 0)
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestSettle_ExecutionFailure(t *testing.T) {
	env := newTestEnv(t)
	mint := testAddress(1)
	env.createToken(t, mint)

	env.chain.SendResult = "sig-fail"
	env.chain.ConfirmErr = &chain.ExecutionError{Signature: "sig-fail", Detail: `{"InstructionError":[0,{"Custom":6002}]}`}

	_, err := env.service.Settle(context.Background(), &SettleRequest{Mint: mint, Payload: "p"})
	require.Error(t, err)

	var execErr *chain.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Detail, "6002")

	// Nothing was recorded.
	trades, err := env.trades.GetByMint(context.Background(), mint, 0)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestSettle_UnverifiableEventSkipsRecording(t *testing.T) {
	env := newTestEnv(t)
	mint := testAddress(1)
	env.createToken(t, mint)

	env.chain.SendResult = "sig-noevent"
	env.chain.Transactions["sig-noevent"] = &chain.Transaction{
		Signature: "sig-noevent",
		Slot:      100,
		Meta:      &chain.TransactionMeta{LogMessages: []string{"Program log: hello"}},
	}

	result, err := env.service.Settle(context.Background(), &SettleRequest{Mint: mint, Payload: "p"})
	require.NoError(t, err)
	assert.False(t, result.Recorded)
	assert.Nil(t, result.Trade)

	// Reserves untouched.
	asset, err := env.assets.GetByMint(context.Background(), mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), asset.Reserves.RealQuote)
}

func TestSettle_GraduationLatch(t *testing.T) {
	env := newTestEnv(t)
	mint := testAddress(1)
	env.createToken(t, mint)

	// Walk the curve just below the threshold, then cross it.
	ts := time.Now().Unix()
	var bought uint64
	for i, quoteIn := range []uint64{60_000_000_000, 60_000_000_000, 2_000_000_000} {
		current, err := env.assets.GetByMint(context.Background(), mint)
		require.NoError(t, err)

		event := buyEvent(t, current, testAddress(3), quoteIn, ts+int64(i))
		env.stageTransaction(t, "sig-grad-"+string(rune('a'+i)), int64(100+i), event)
		result, err := env.service.Settle(context.Background(), &SettleRequest{Mint: mint, Payload: "p"})
		require.NoError(t, err)
		require.True(t, result.Recorded)
		bought += event.BaseAmount
	}

	updated, err := env.assets.GetByMint(context.Background(), mint)
	require.NoError(t, err)
	require.GreaterOrEqual(t, updated.Reserves.RealQuote, domain.GraduationThreshold)
	assert.True(t, updated.Graduated)
	require.NotNil(t, updated.GraduatedAt)

	// Quoting is rejected once graduated.
	_, err = env.service.Quote(context.Background(), mint, domain.SideBuy, 1_000_000)
	require.ErrorIs(t, err, ErrGraduated)

	// The latch is one-way: a sell that drains quote does not clear it.
	sell := sellEvent(t, updated, testAddress(3), bought/2, ts+10)
	env.stageTransaction(t, "sig-grad-sell", 200, sell)
	result, err := env.service.Settle(context.Background(), &SettleRequest{Mint: mint, Payload: "p"})
	require.NoError(t, err)
	require.True(t, result.Recorded)

	final, err := env.assets.GetByMint(context.Background(), mint)
	require.NoError(t, err)
	assert.True(t, final.Graduated)
}

func TestSettle_UnknownMint(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.Settle(context.Background(), &SettleRequest{Mint: testAddress(9), Payload: "p"})
	require.Error(t, err)
}

func TestReconcile_RecordsMissedTrade(t *testing.T) {
	env := newTestEnv(t)
	mint := testAddress(1)
	asset := env.createToken(t, mint)

	ts := time.Now().Unix()
	event := buyEvent(t, asset, testAddress(3), 1_000_000_000, ts)

	note := &chain.LogNotification{
		Signature: "sig-watcher",
		Slot:      123,
		Logs:      []string{encodeTradeLog(t, event)},
	}

	require.NoError(t, env.service.Reconcile(context.Background(), note))

	trade, err := env.trades.GetBySignature(context.Background(), "sig-watcher")
	require.NoError(t, err)
	assert.Equal(t, domain.SideBuy, trade.Side)
	assert.Equal(t, int64(123), trade.Slot)

	updated, err := env.assets.GetByMint(context.Background(), mint)
	require.NoError(t, err)
	assert.Equal(t, event.QuoteAmount-event.ProtocolFee-event.CreatorFee, updated.Reserves.RealQuote)

	// Replaying the same notification is a no-op.
	require.NoError(t, env.service.Reconcile(context.Background(), note))
	trades, err := env.trades.GetByMint(context.Background(), mint, 0)
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestReconcile_IgnoresFailedAndNonTradeLogs(t *testing.T) {
	env := newTestEnv(t)
	mint := testAddress(1)
	asset := env.createToken(t, mint)

	event := buyEvent(t, asset, testAddress(3), 1_000_000_000, time.Now().Unix())

	// Failed transaction: skipped even with a parseable event.
	failed := &chain.LogNotification{
		Signature: "sig-failed",
		Err:       map[string]any{"InstructionError": []any{0, "Custom"}},
		Logs:      []string{encodeTradeLog(t, event)},
	}
	require.NoError(t, env.service.Reconcile(context.Background(), failed))

	// Non-trade logs: nothing to do.
	plain := &chain.LogNotification{Signature: "sig-plain", Logs: []string{"Program log: hi"}}
	require.NoError(t, env.service.Reconcile(context.Background(), plain))

	trades, err := env.trades.GetByMint(context.Background(), mint, 0)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestSettle_ReserveViolationAborts(t *testing.T) {
	env := newTestEnv(t)
	mint := testAddress(1)
	env.createToken(t, mint)

	// A sell against an empty curve would drive the real quote negative.
	event := &chain.TradeEvent{
		Mint:                 mint,
		Trader:               testAddress(3),
		IsBuy:                false,
		QuoteAmount:          1_000_000_000,
		BaseAmount:           1_000_000,
		ProtocolFee:          5_000_000,
		CreatorFee:           5_000_000,
		VirtualQuoteReserves: domain.InitialVirtualQuote - 1_000_000_000,
		VirtualBaseReserves:  domain.InitialVirtualBase + 1_000_000,
		Timestamp:            time.Now().Unix(),
	}
	env.stageTransaction(t, "sig-violation", 100, event)

	_, err := env.service.Settle(context.Background(), &SettleRequest{Mint: mint, Payload: "p"})
	require.ErrorIs(t, err, domain.ErrReserveViolation)

	trades, err := env.trades.GetByMint(context.Background(), mint, 0)
	require.NoError(t, err)
	assert.Empty(t, trades)
}
