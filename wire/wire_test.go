package wire

import (
	"bytes"
	"encoding/json"
	"io"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"
)

func TestMarshalCarriesTag(t *testing.T) {
	line, err := Marshal(Hello{Address: "0xabc", Nonce: "n0nce"})
	require.NoError(t, err)
	require.Equal(t, byte('\n'), line[len(line)-1])

	var raw map[string]any
	require.NoError(t, json.Unmarshal(line, &raw))
	require.Equal(t, "hello", raw["msgtype"])
	require.Equal(t, "n0nce", raw["sessionID"])
}

func TestUnmarshalDispatch(t *testing.T) {
	msgs := []Message{
		Hello{Address: "0xabc", Nonce: "xyz", BuyIn: "100", Duration: 3600, JoinDuration: 600, DisputeDuration: 900},
		Create{V: 27, R: (*hexutil.Big)(big.NewInt(7)), S: (*hexutil.Big)(big.NewInt(9))},
		Join{Tx: "deadbeef", BuyIn: "100"},
		Shuffle{Round: 3, Deck: []string{"04aa", "04bb"}, Key: (*hexutil.Big)(big.NewInt(42))},
		Hand{Subtype: HandAccept, PrevState: "aa", NextState: "bb",
			NextV: 28, NextR: (*hexutil.Big)(big.NewInt(1)), NextS: (*hexutil.Big)(big.NewInt(2)),
			PrevV: 27, PrevR: (*hexutil.Big)(big.NewInt(3)), PrevS: (*hexutil.Big)(big.NewInt(4))},
		Handover{PrevState: "cc", PrevV: 27, PrevR: (*hexutil.Big)(big.NewInt(5)), PrevS: (*hexutil.Big)(big.NewInt(6)), Stop: 1, Tx: "feed"},
	}
	for _, msg := range msgs {
		line, err := Marshal(msg)
		require.NoError(t, err)
		got, err := Unmarshal(line)
		require.NoError(t, err)
		require.Equal(t, msg.Type(), got.Type())
	}
}

func TestUnmarshalHandFields(t *testing.T) {
	line := []byte(`{"msgtype":"hand","type":1,"previous_state":"aa","next_state":"bb","next_v":27,"next_r":"0x1","next_s":"0x2"}`)
	msg, err := Unmarshal(line)
	require.NoError(t, err)
	hand, ok := msg.(*Hand)
	require.True(t, ok)
	require.Equal(t, HandPropose, hand.Subtype)
	require.Equal(t, uint8(27), hand.NextV)
	require.Nil(t, hand.PrevR)
}

func TestUnmarshalRejectsUnknownType(t *testing.T) {
	_, err := Unmarshal([]byte(`{"msgtype":"gossip"}`))
	require.Error(t, err)
	_, err = Unmarshal([]byte(`not json`))
	require.Error(t, err)
}

func TestCodecStream(t *testing.T) {
	var buf bytes.Buffer
	c := NewCodec(&buf)
	require.NoError(t, c.Send(Hello{Address: "0x1", Nonce: "a"}))
	require.NoError(t, c.Send(Shuffle{Round: 1, Deck: []string{"04aa"}}))

	first, err := c.Recv()
	require.NoError(t, err)
	require.Equal(t, TypeHello, first.Type())
	second, err := c.Recv()
	require.NoError(t, err)
	require.Equal(t, TypeShuffle, second.Type())

	_, err = c.Recv()
	require.ErrorIs(t, err, io.EOF)
}
