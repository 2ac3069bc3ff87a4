package gateway

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_Register(t *testing.T) {
	router := NewRouter()

	err := router.Register("ping", func(*Client, map[string]interface{}) (interface{}, error) {
		return "pong", nil
	})
	require.NoError(t, err)
	assert.Contains(t, router.Methods(), "ping")

	assert.Error(t, router.Register("nil", nil))
}

func TestRouter_ParseRequest(t *testing.T) {
	router := NewRouter()

	t.Run("valid request", func(t *testing.T) {
		req, errResp := router.ParseRequest([]byte(`{"id":"1","method":"ping","params":{"a":1}}`))
		require.Nil(t, errResp)
		assert.Equal(t, "ping", req.Method)
		assert.Equal(t, float64(1), req.Params["a"])
	})

	t.Run("malformed json", func(t *testing.T) {
		_, errResp := router.ParseRequest([]byte(`{not json`))
		require.NotNil(t, errResp)
		assert.Equal(t, ParseError, errResp.Code)
	})

	t.Run("missing method", func(t *testing.T) {
		_, errResp := router.ParseRequest([]byte(`{"id":"1"}`))
		require.NotNil(t, errResp)
		assert.Equal(t, InvalidRequest, errResp.Code)
	})
}

func TestRouter_Route(t *testing.T) {
	router := NewRouter()
	client := &Client{ID: "c1"}

	require.NoError(t, router.Register("echo", func(_ *Client, params map[string]interface{}) (interface{}, error) {
		return params["msg"], nil
	}))
	require.NoError(t, router.Register("boom", func(*Client, map[string]interface{}) (interface{}, error) {
		return nil, errors.New("kaput")
	}))
	require.NoError(t, router.Register("typed", func(*Client, map[string]interface{}) (interface{}, error) {
		return nil, &Error{Code: InvalidParams, Message: "bad params"}
	}))

	t.Run("dispatches to handler", func(t *testing.T) {
		resp := router.Route(client, &Request{ID: "1", Method: "echo", Params: map[string]interface{}{"msg": "hi"}})
		require.Nil(t, resp.Error)
		assert.Equal(t, "hi", resp.Result)
		assert.Equal(t, "1", resp.ID)
	})

	t.Run("unknown method", func(t *testing.T) {
		resp := router.Route(client, &Request{ID: "2", Method: "missing"})
		require.NotNil(t, resp.Error)
		assert.Equal(t, MethodNotFound, resp.Error.Code)
	})

	t.Run("handler error becomes internal error", func(t *testing.T) {
		resp := router.Route(client, &Request{ID: "3", Method: "boom"})
		require.NotNil(t, resp.Error)
		assert.Equal(t, InternalError, resp.Error.Code)
		assert.Equal(t, "kaput", resp.Error.Message)
	})

	t.Run("typed error preserved", func(t *testing.T) {
		resp := router.Route(client, &Request{ID: "4", Method: "typed"})
		require.NotNil(t, resp.Error)
		assert.Equal(t, InvalidParams, resp.Error.Code)
	})
}
