package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, expiry time.Time) string {
	t.Helper()
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub": "cashier@example.com",
		"exp": expiry.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestSetTokenRejectsExpiredJWT(t *testing.T) {
	c := NewClient("http://localhost:0")

	err := c.SetToken(signedToken(t, time.Now().Add(-time.Hour)))
	assert.ErrorIs(t, err, ErrCredentialExpired)

	assert.NoError(t, c.SetToken(signedToken(t, time.Now().Add(time.Hour))))
}

func TestSetTokenAcceptsOpaqueToken(t *testing.T) {
	c := NewClient("http://localhost:0")
	assert.NoError(t, c.SetToken("api-key:api-secret"))
	assert.ErrorIs(t, c.SetToken("   "), ErrNoCredential)
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/method/ping", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	assert.True(t, c.Ping(context.Background()))
}

func TestPingTreatsServerErrorAsDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	assert.False(t, c.Ping(context.Background()))

	srv.Close()
	assert.False(t, c.Ping(context.Background()), "transport failure counts as down")
}

func TestStockQuantitiesRequiresCredential(t *testing.T) {
	c := NewClient("http://localhost:0")
	_, err := c.StockQuantities(context.Background(), "Main - WH", []string{"ITM-001"})
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestStockQuantitiesDecodesBareArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "Main - WH", r.FormValue("warehouse"))

		var codes []string
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("item_codes")), &codes))
		assert.Equal(t, []string{"ITM-001", "ITM-002"}, codes)

		_, _ = w.Write([]byte(`[{"item_code":"ITM-001","warehouse":"Main - WH","actual_qty":7,"stock_qty":7}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	require.NoError(t, c.SetToken("api-key:api-secret"))

	rows, err := c.StockQuantities(context.Background(), "Main - WH", []string{"ITM-001", "ITM-002"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ITM-001", rows[0].ItemCode)
	assert.Equal(t, 7.0, rows[0].Qty())
}

func TestStockQuantitiesDecodesMessageEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":[{"item_code":"ITM-002","warehouse":"Main - WH","stock_qty":3}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	require.NoError(t, c.SetToken("api-key:api-secret"))

	rows, err := c.StockQuantities(context.Background(), "Main - WH", []string{"ITM-002"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 3.0, rows[0].Qty())
}

func TestStockQuantitiesPropagatesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	require.NoError(t, c.SetToken("api-key:api-secret"))

	_, err := c.StockQuantities(context.Background(), "Main - WH", []string{"ITM-001"})
	assert.Error(t, err)
}

func TestStockQuantitiesEmptyTargetIsNoOp(t *testing.T) {
	c := NewClient("http://localhost:0")
	rows, err := c.StockQuantities(context.Background(), "", nil)
	assert.NoError(t, err)
	assert.Nil(t, rows)
}
