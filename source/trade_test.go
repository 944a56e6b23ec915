package source

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTradeRoundTrip(t *testing.T) {
	trade := Trade{Ticker: "AAPL", Time: 1693000000000, Price: 19250, Quantity: 100}
	decoded, err := DecodeTrade(EncodeTrade(trade))
	require.NoError(t, err)
	assert.Equal(t, trade, decoded)
}

func TestTradeNegativeFields(t *testing.T) {
	trade := Trade{Ticker: "X", Time: -1, Price: -5, Quantity: -100}
	decoded, err := DecodeTrade(EncodeTrade(trade))
	require.NoError(t, err)
	assert.Equal(t, trade, decoded)
}

func TestDecodeTradeMalformed(t *testing.T) {
	cases := map[string][]byte{
		"empty":                  {},
		"short prefix":           {0, 0, 1},
		"zero ticker length":     {0, 0, 0, 0},
		"huge ticker length":     {0xff, 0xff, 0xff, 0xff},
		"truncated body":         append([]byte{0, 0, 0, 4}, []byte("AAPL")...),
		"trailing garbage bytes": append(EncodeTrade(Trade{Ticker: "AAPL"}), 0),
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeTrade(payload)
			require.Error(t, err)
			var deserializationError *DeserializationError
			assert.True(t, errors.As(err, &deserializationError))
		})
	}
}
