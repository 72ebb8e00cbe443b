package chain

import (
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeTradeEvent builds a wire-format trade event log line.
func encodeTradeEvent(t *testing.T, event *TradeEvent) string {
	t.Helper()

	mint, err := base58.Decode(event.Mint)
	require.NoError(t, err)
	require.Len(t, mint, 32)
	trader, err := base58.Decode(event.Trader)
	require.NoError(t, err)
	require.Len(t, trader, 32)

	data := make([]byte, 0, 8+tradeEventLen)
	data = append(data, tradeEventDiscriminator[:]...)
	data = append(data, mint...)
	data = append(data, trader...)
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

	return programDataPrefix + base64.StdEncoding.EncodeToString(data)
}

func testMint() string {
	b := make([]byte, 32)
	for i := range b {
		b[i] = byte(i + 1)
	}
	return base58.Encode(b)
}

func testTrader() string {
	b := make([]byte, 32)
	for i := range b {
		b[i] = byte(200 - i)
	}
	return base58.Encode(b)
}

func TestParseTradeEvent_Buy(t *testing.T) {
	want := &TradeEvent{
		Mint:                 testMint(),
		Trader:               testTrader(),
		IsBuy:                true,
		QuoteAmount:          1_000_000_000,
		BaseAmount:           34_277_832,
		ProtocolFee:          5_000_000,
		CreatorFee:           5_000_000,
		VirtualQuoteReserves: 30_990_000_000,
		VirtualBaseReserves:  1_038_722_168,
		Timestamp:            1_700_000_000,
	}

	logs := []string{
		"Program " + LaunchpadProgram + " invoke [1]",
		"Program log: Instruction: Buy",
		encodeTradeEvent(t, want),
		"Program " + LaunchpadProgram + " success",
	}

	got := ParseTradeEvent(logs)
	require.NotNil(t, got)
	assert.Equal(t, want, got)
}

func TestParseTradeEvent_Sell(t *testing.T) {
	want := &TradeEvent{
		Mint:                 testMint(),
		Trader:               testTrader(),
		IsBuy:                false,
		QuoteAmount:          980_100_013,
		BaseAmount:           34_277_832,
		ProtocolFee:          4_950_000,
		CreatorFee:           4_950_000,
		VirtualQuoteReserves: 29_999_999_987,
		VirtualBaseReserves:  1_073_000_000,
		Timestamp:            1_700_000_060,
	}

	got := ParseTradeEvent([]string{encodeTradeEvent(t, want)})
	require.NotNil(t, got)
	assert.False(t, got.IsBuy)
	assert.Equal(t, want, got)
}

func TestParseTradeEvent_NoEvent(t *testing.T) {
	// Irrelevant transaction: absence is a normal outcome, not an error.
	logs := []string{
		"Program 11111111111111111111111111111111 invoke [1]",
		"Program 11111111111111111111111111111111 success",
	}
	assert.Nil(t, ParseTradeEvent(logs))
	assert.Nil(t, ParseTradeEvent(nil))
}

func TestParseTradeEvent_WrongDiscriminator(t *testing.T) {
	data := make([]byte, 8+tradeEventLen)
	data[0] = 0xff
	line := programDataPrefix + base64.StdEncoding.EncodeToString(data)
	assert.Nil(t, ParseTradeEvent([]string{line}))
}

func TestParseTradeEvent_Truncated(t *testing.T) {
	data := append([]byte{}, tradeEventDiscriminator[:]...)
	data = append(data, make([]byte, 40)...) // far too short
	line := programDataPrefix + base64.StdEncoding.EncodeToString(data)
	assert.Nil(t, ParseTradeEvent([]string{line}))
}

func TestParseTradeEvent_InvalidBase64(t *testing.T) {
	assert.Nil(t, ParseTradeEvent([]string{programDataPrefix + "!!!not-base64!!!"}))
}

func TestParseTradeEvent_SkipsNonMatchingLines(t *testing.T) {
	want := &TradeEvent{
		Mint:                 testMint(),
		Trader:               testTrader(),
		IsBuy:                true,
		QuoteAmount:          42,
		BaseAmount:           7,
		VirtualQuoteReserves: 30_000_000_042,
		VirtualBaseReserves:  1_072_999_993,
		Timestamp:            1_700_000_000,
	}

	logs := []string{
		"Program log: something unrelated",
		programDataPrefix + base64.StdEncoding.EncodeToString([]byte("short")),
		encodeTradeEvent(t, want),
	}

	got := ParseTradeEvent(logs)
	require.NotNil(t, got)
	assert.Equal(t, uint64(42), got.QuoteAmount)
}
