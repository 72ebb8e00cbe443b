package chain

import (
	"encoding/base64"
	"encoding/binary"
	"strings"

	"github.com/mr-tron/base58"
)

// LaunchpadProgram is the on-chain launchpad program ID.
const LaunchpadProgram = "GMdG56oR3Qpc8NT6TwAtwdwNggxRADn6VAYbotLF1aM"

// programDataPrefix marks log lines carrying program-emitted event payloads.
const programDataPrefix = "Program data: "

// tradeEventDiscriminator is the 8-byte content-addressed tag for trade
// event records: sha256("event:TradeEvent")[:8].
var tradeEventDiscriminator = [8]byte{0xbd, 0xdb, 0x7f, 0xd3, 0x4e, 0xe6, 0x61, 0xee}

// tradeEventLen is the fixed record length after the discriminator:
// mint(32) + trader(32) + isBuy(1) + six u64(48) + timestamp i64(8).
const tradeEventLen = 32 + 32 + 1 + 6*8 + 8

// TradeEvent is the trade confirmation record emitted by the launchpad
// program. It is the only trusted source for settled amounts: client-supplied
// values are never recorded, only what the execution layer confirmed.
type TradeEvent struct {
	Mint   string
	Trader string
	IsBuy  bool

	QuoteAmount uint64 // lamports (buy: gross in; sell: net out)
	BaseAmount  uint64 // token base units
	ProtocolFee uint64 // lamports
	CreatorFee  uint64 // lamports

	// Post-trade virtual reserves.
	VirtualQuoteReserves uint64
	VirtualBaseReserves  uint64

	Timestamp int64 // Unix timestamp (seconds)
}

// ParseTradeEvent scans transaction log lines for a trade event record and
// decodes it. Returns nil when no valid record is present: absence is a
// normal outcome (e.g. a non-trade transaction), never an error.
func ParseTradeEvent(logs []string) *TradeEvent {
	for _, line := range logs {
		idx := strings.Index(line, programDataPrefix)
		if idx < 0 {
			continue
		}

		data, err := base64.StdEncoding.DecodeString(line[idx+len(programDataPrefix):])
		if err != nil {
			continue
		}

		if event := decodeTradeEvent(data); event != nil {
			return event
		}
	}
	return nil
}

// decodeTradeEvent decodes a discriminator-prefixed trade event record.
// Returns nil for non-matching or truncated payloads.
func decodeTradeEvent(data []byte) *TradeEvent {
	if len(data) < 8+tradeEventLen {
		return nil
	}
	for i := 0; i < 8; i++ {
		if data[i] != tradeEventDiscriminator[i] {
			return nil
		}
	}

	body := data[8:]
	event := &TradeEvent{
		Mint:   base58.Encode(body[0:32]),
		Trader: base58.Encode(body[32:64]),
		IsBuy:  body[64] != 0,

		QuoteAmount: binary.LittleEndian.Uint64(body[65:73]),
		BaseAmount:  binary.LittleEndian.Uint64(body[73:81]),
		ProtocolFee: binary.LittleEndian.Uint64(body[81:89]),
		CreatorFee:  binary.LittleEndian.Uint64(body[89:97]),

		VirtualQuoteReserves: binary.LittleEndian.Uint64(body[97:105]),
		VirtualBaseReserves:  binary.LittleEndian.Uint64(body[105:113]),

		Timestamp: int64(binary.LittleEndian.Uint64(body[113:121])),
	}
	return event
}
