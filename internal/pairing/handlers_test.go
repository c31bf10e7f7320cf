package pairing

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) (*gin.Engine, *Manager, *fakeClient) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m, client, _ := newTestManager(t)
	router := gin.New()
	NewHandler(m).RegisterRoutes(router.Group("/"))
	return router, m, client
}

func doJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandlerCreatePairing(t *testing.T) {
	router, _, _ := setupRouter(t)

	w := doJSON(router, http.MethodGet, "/pairing?preferredChain=eip155:137", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp CreateResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	assert.Contains(t, resp.URI, "wc:")
	assert.Contains(t, resp.URI, "symKey=")
	assert.False(t, resp.ExpiresAt.IsZero())
}

func TestHandlerPairingStatus(t *testing.T) {
	router, m, client := setupRouter(t)

	w := doJSON(router, http.MethodGet, "/pairing/status", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodGet, "/pairing/status?id=unknown", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "not_found")

	id := approveSession(t, m, client, "topic-a")
	w = doJSON(router, http.MethodGet, "/pairing/status?id="+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status  string   `json:"status"`
		Session *Session `json:"session"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "approved", resp.Status)
	require.NotNil(t, resp.Session)
	assert.Equal(t, "topic-a", resp.Session.Topic)
	assert.Equal(t, "eip155:1", resp.Session.ChainRef)
}

func TestHandlerSwitchNetwork(t *testing.T) {
	router, m, client := setupRouter(t)
	approveSession(t, m, client, "topic-a")

	w := doJSON(router, http.MethodPost, "/pairing/switch", SwitchRequest{Topic: "topic-a", ChainRef: "eip155:137"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "eip155:137")

	w = doJSON(router, http.MethodPost, "/pairing/switch", SwitchRequest{Topic: "topic-a", ChainRef: "eip155:31337"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unsupported_chain")

	w = doJSON(router, http.MethodPost, "/pairing/switch", SwitchRequest{Topic: "ghost", ChainRef: "eip155:137"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "session_not_found")

	w = doJSON(router, http.MethodPost, "/pairing/switch", gin.H{"topic": "topic-a"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerDispatchRequest(t *testing.T) {
	router, m, client := setupRouter(t)
	approveSession(t, m, client, "topic-a")

	w := doJSON(router, http.MethodPost, "/pairing/request", RPCRequest{
		Topic:  "topic-a",
		Method: "personal_sign",
		Params: []any{"0x68656c6c6f"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "result")

	w = doJSON(router, http.MethodPost, "/pairing/request", RPCRequest{
		Topic:  "topic-a",
		Method: "eth_newFilter",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "method_not_allowed")

	w = doJSON(router, http.MethodPost, "/pairing/request", RPCRequest{
		Topic:  "topic-a",
		Method: "eth_sendTransaction",
		Params: []any{map[string]any{"from": "0x1111111111111111111111111111111111111111"}},
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "address_mismatch")
}

func TestHandlerListChains(t *testing.T) {
	router, _, _ := setupRouter(t)

	w := doJSON(router, http.MethodGet, "/chains", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Default string   `json:"default"`
		Chains  []string `json:"chains"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "eip155:1", resp.Default)
	assert.Len(t, resp.Chains, 10)
	assert.Contains(t, resp.Chains, "eip155:59144")
}
