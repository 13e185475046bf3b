package connectors

import "fmt"

// BinanceErrorCodes maps Binance futures API error codes to human-readable
// messages.
var BinanceErrorCodes = map[int]string{
	-1000: "UNKNOWN",                      // Unknown error while processing the request
	-1001: "DISCONNECTED",                 // Internal error, unable to process
	-1003: "TOO_MANY_REQUESTS",            // Rate limit exceeded
	-1006: "UNEXPECTED_RESP",              // Unexpected response, execution status unknown
	-1007: "TIMEOUT",                      // Timeout waiting for backend, send status unknown
	-1021: "INVALID_TIMESTAMP",            // Timestamp outside of recvWindow
	-1022: "INVALID_SIGNATURE",            // Signature for this request is not valid
	-1102: "MANDATORY_PARAM_EMPTY",        // Mandatory parameter empty or malformed
	-1111: "TOO_MANY_DECIMALS",            // Precision over the maximum for this asset
	-1121: "BAD_SYMBOL",                   // Invalid symbol
	-2010: "NEW_ORDER_REJECTED",           // Order rejected
	-2011: "CANCEL_REJECTED",              // Cancel rejected
	-2013: "NO_SUCH_ORDER",                // Order does not exist
	-2015: "REJECTED_API_KEY",             // Invalid API key, IP, or permissions
	-2018: "BALANCE_NOT_SUFFICIENT",       // Balance insufficient
	-2019: "MARGIN_NOT_SUFFICIENT",        // Margin insufficient
	-2020: "UNABLE_TO_FILL",               // Unable to fill
	-2021: "ORDER_WOULD_IMMEDIATELY_TRIGGER", // Stop price would trigger immediately
	-2022: "REDUCE_ONLY_REJECT",           // ReduceOnly order rejected
	-2025: "MAX_OPEN_ORDER_EXCEEDED",      // Reached max open order limit
	-2027: "MAX_LEVERAGE_RATIO",           // Exceeded max leverage for current notional
	-4003: "QTY_LESS_THAN_ZERO",           // Quantity less than zero
	-4004: "QTY_LESS_THAN_MIN_QTY",        // Quantity below minimum
	-4014: "PRICE_NOT_INCREASED_BY_TICK",  // Price not a multiple of tick size
	-4028: "INVALID_LEVERAGE",             // Invalid leverage value
	-4046: "NO_NEED_TO_CHANGE_MARGIN_TYPE", // Margin type already set
	-4061: "INVALID_POSITION_SIDE",        // Order position side mismatch
	-4131: "MARKET_ORDER_REJECT",          // Counterparty best price violates PERCENT_PRICE filter
	-4164: "MIN_NOTIONAL",                 // Order notional below minimum
}

// GetErrorMsg returns a human-readable message for a given Binance error
// code, falling back to the raw message from the exchange.
func GetErrorMsg(code int, raw string) string {
	if msg, ok := BinanceErrorCodes[code]; ok {
		return msg
	}
	if raw != "" {
		return raw
	}
	return fmt.Sprintf("UNKNOWN_BINANCE_ERROR_%d", code)
}
