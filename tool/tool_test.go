package tool

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFunction(t *testing.T) {
	bare := Function("get_menu", "menu", nil)
	data, err := json.Marshal(bare)
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"function","name":"get_menu","description":"menu"}`, string(data))

	withArgs := Function("get_cart", "cart", Properties{"session_id": {Type: "string"}}, "session_id")
	data, err = json.Marshal(withArgs)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"type":"function","name":"get_cart","description":"cart",
		"parameters":{"type":"object","properties":{"session_id":{"type":"string"}},"required":["session_id"]}
	}`, string(data))
}

func TestChoiceFor(t *testing.T) {
	require.Equal(t, ChoiceNone, ChoiceFor(nil))
	require.Equal(t, ChoiceAuto, ChoiceFor([]Tool{Function("x", "", nil)}))
}
