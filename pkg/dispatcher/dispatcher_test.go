package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoDefinition() Definition {
	return Definition{
		Name:        "echo",
		Description: "Echoes its message argument",
		Parameters: []Parameter{
			{Name: "message", Type: "string", Description: "Message to echo", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (Result, error) {
			return Succeed("ok").With("echo", args["message"]), nil
		},
	}
}

func TestDispatcher_Register(t *testing.T) {
	d := New(0, nil)

	require.NoError(t, d.Register(echoDefinition()))
	assert.Contains(t, d.Names(), "echo")

	err := d.Register(echoDefinition())
	assert.Error(t, err, "duplicate registration rejected")
}

func TestDispatcher_Register_InvalidDefinition(t *testing.T) {
	d := New(0, nil)

	noop := func(ctx context.Context, args map[string]interface{}) (Result, error) {
		return Succeed("ok"), nil
	}

	tests := []struct {
		name string
		def  Definition
	}{
		{name: "empty name", def: Definition{Description: "x", Handler: noop}},
		{name: "empty description", def: Definition{Name: "x", Handler: noop}},
		{name: "nil handler", def: Definition{Name: "x", Description: "x"}},
		{
			name: "bad parameter type",
			def: Definition{
				Name: "x", Description: "x", Handler: noop,
				Parameters: []Parameter{{Name: "p", Type: "float"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, d.Register(tt.def))
		})
	}
}

func TestDispatcher_Dispatch_Success(t *testing.T) {
	d := New(0, nil)
	require.NoError(t, d.Register(echoDefinition()))

	result := d.Dispatch(context.Background(), Invocation{
		Name:      "echo",
		Arguments: map[string]interface{}{"message": "bonjour"},
	})

	assert.True(t, result.Success)
	v, ok := result.Field("echo")
	require.True(t, ok)
	assert.Equal(t, "bonjour", v)
}

func TestDispatcher_Dispatch_MissingRequiredArgument(t *testing.T) {
	d := New(0, nil)
	require.NoError(t, d.Register(echoDefinition()))

	result := d.Dispatch(context.Background(), Invocation{Name: "echo"})

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "arguments invalides")
}

func TestDispatcher_Dispatch_AdditionalArgumentsAccepted(t *testing.T) {
	d := New(0, nil)
	require.NoError(t, d.Register(echoDefinition()))

	result := d.Dispatch(context.Background(), Invocation{
		Name: "echo",
		Arguments: map[string]interface{}{
			"message":        "bonjour",
			"provider_extra": true,
		},
	})

	assert.True(t, result.Success, "unknown argument keys are tolerated")
}

func TestDispatcher_Dispatch_UnknownToolFallback(t *testing.T) {
	d := New(0, nil)

	var sawName interface{}
	d.SetFallback(func(ctx context.Context, args map[string]interface{}) (Result, error) {
		sawName = args["__tool"]
		return Succeed("transmis au fournisseur externe"), nil
	})
	require.NoError(t, d.Register(echoDefinition()))

	result := d.Dispatch(context.Background(), Invocation{
		Name:      "brand_new_tool",
		Arguments: map[string]interface{}{"__tool": "brand_new_tool"},
	})

	assert.True(t, result.Success)
	assert.Equal(t, "brand_new_tool", sawName)
}

func TestDispatcher_Dispatch_UnknownToolNoFallback(t *testing.T) {
	d := New(0, nil)

	result := d.Dispatch(context.Background(), Invocation{Name: "nope"})
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "outil inconnu")
}

func TestDispatcher_Dispatch_HandlerError(t *testing.T) {
	d := New(0, nil)
	require.NoError(t, d.Register(Definition{
		Name:        "boom",
		Description: "Always errors",
		Handler: func(ctx context.Context, args map[string]interface{}) (Result, error) {
			return Result{}, errors.New("service indisponible")
		},
	}))

	result := d.Dispatch(context.Background(), Invocation{Name: "boom"})
	assert.False(t, result.Success)
	assert.Equal(t, "service indisponible", result.Message)
}

func TestDispatcher_Dispatch_HandlerPanic(t *testing.T) {
	d := New(0, nil)
	require.NoError(t, d.Register(Definition{
		Name:        "panic",
		Description: "Always panics",
		Handler: func(ctx context.Context, args map[string]interface{}) (Result, error) {
			panic("boom")
		},
	}))

	result := d.Dispatch(context.Background(), Invocation{Name: "panic"})
	assert.False(t, result.Success, "panic is contained into a failure result")
}

func TestDispatcher_Dispatch_Timeout(t *testing.T) {
	d := New(50*time.Millisecond, nil)
	require.NoError(t, d.Register(Definition{
		Name:        "slow",
		Description: "Sleeps past the timeout",
		Handler: func(ctx context.Context, args map[string]interface{}) (Result, error) {
			select {
			case <-time.After(5 * time.Second):
				return Succeed("late"), nil
			case <-ctx.Done():
				return Fail("cancelled"), nil
			}
		},
	}))

	start := time.Now()
	result := d.Dispatch(context.Background(), Invocation{Name: "slow"})

	assert.False(t, result.Success)
	assert.Less(t, time.Since(start), time.Second)
}

func TestResult_MarshalJSON_FlattensFields(t *testing.T) {
	result := Succeed("champ rempli").
		With("field", "firstName").
		With("value", "Jean")

	data, err := json.Marshal(result)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, true, raw["success"])
	assert.Equal(t, "champ rempli", raw["message"])
	assert.Equal(t, "firstName", raw["field"])
	assert.Equal(t, "Jean", raw["value"])
}

func TestResult_UnmarshalJSON_Roundtrip(t *testing.T) {
	var result Result
	require.NoError(t, json.Unmarshal([]byte(`{"success":false,"message":"non","remaining":0}`), &result))

	assert.False(t, result.Success)
	assert.Equal(t, "non", result.Message)
	v, ok := result.Field("remaining")
	require.True(t, ok)
	assert.EqualValues(t, 0, v)
}
