package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/auth"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/cache"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dispatcher"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/handlers"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/middleware"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/repository"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/simulated"
)

var (
	usdcAddr      = common.HexToAddress("0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238")
	custodian     = common.HexToAddress("0x0000000000000000000000000000000000c0ffee")
	messengerAddr = common.HexToAddress("0x9f3B8679c73C2Fef8b59B4f3444d4e156fb70AA5")
	metadataAddr  = common.HexToAddress("0x1996f0eC0bdA4Ee0eCDe5a5b7D6B6F4D2C1e1E7F")
	owner         = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	feeUpdater    = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	collector     = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	user          = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

const arbitrum uint32 = 3

type messengers struct {
	token *simulated.Token
}

func (m messengers) Messenger(a common.Address) (dispatcher.Messenger, error) {
	return simulated.NewMessenger(a, custodian, m.token), nil
}

func (m messengers) MetadataMessenger(a common.Address) (dispatcher.MetadataMessenger, error) {
	return simulated.NewMetadataMessenger(a, custodian, dispatcher.DefaultForwardingDomain, m.token), nil
}

type server struct {
	t      *testing.T
	engine *gin.Engine
	tokens *auth.TokenIssuer
	token  *simulated.Token
	d      *dispatcher.Dispatcher
	repo   repository.SettlementRepository
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	token := simulated.NewToken(usdcAddr, "USDC", 1337)
	token.Mint(user, big.NewInt(100_000_000))
	require.NoError(t, token.Approve(ctx, user, custodian, dispatcher.MaxUint256()))

	roles, err := dispatcher.NewRoleRegistry(ctx, dispatcher.RoleState{Owner: owner, FeeUpdater: feeUpdater, Collector: collector}, nil)
	require.NoError(t, err)
	fees, err := dispatcher.NewFeeSchedule(ctx, roles, nil, 0)
	require.NoError(t, err)
	require.NoError(t, fees.SetFee(ctx, feeUpdater, arbitrum, 10, big.NewInt(1000)))

	repo := repository.NewMemorySettlementRepository(0)
	d, err := dispatcher.New(ctx, dispatcher.Options{
		BurnToken: usdcAddr,
		Custodian: custodian,
		Logger:    logger,
	}, dispatcher.Collaborators{
		Messenger:         simulated.NewMessenger(messengerAddr, custodian, token),
		MetadataMessenger: simulated.NewMetadataMessenger(metadataAddr, custodian, dispatcher.DefaultForwardingDomain, token),
		Asset:             token,
		Fees:              fees,
		Roles:             roles,
		Sink:              repo,
		Withdrawals:       repo,
	})
	require.NoError(t, err)

	tokens := auth.NewTokenIssuer("test-secret", time.Hour)
	authMW := middleware.NewAuthMiddleware(logger, tokens)
	authH := handlers.NewAuthHandler(cache.NewMemoryNonceStore(time.Minute), tokens, logger)
	feeH := handlers.NewFeeHandler(d)
	roleH := handlers.NewRoleHandler(roles)
	transferH := handlers.NewTransferHandler(d, repo, logger)
	custodyH := handlers.NewCustodyHandler(d, token, repo, logger)
	adminH := handlers.NewAdminHandler(d, messengers{token: token}, logger)

	r := gin.New()
	r.GET("/health", handlers.HealthHandler("test", "simulated"))
	api := r.Group("/api")
	api.POST("/auth/nonce", authH.Nonce)
	api.POST("/auth/login", authH.Login)
	api.GET("/fees", feeH.List)
	api.GET("/fees/:domain", feeH.Get)
	api.GET("/fees/:domain/quote", feeH.Quote)
	api.GET("/roles", roleH.Get)
	api.GET("/custody", custodyH.Get)
	api.GET("/custody/withdrawals", custodyH.ListWithdrawals)
	api.GET("/fast-tokens", adminH.FastTokens)
	api.GET("/settlements", transferH.List)
	api.GET("/settlements/:id", transferH.Get)

	authed := api.Group("", authMW.RequireAuth())
	authed.POST("/transfers", transferH.Submit)
	authed.PUT("/admin/fees/:domain", feeH.Set)
	authed.PUT("/admin/roles/:role", roleH.Assign)
	authed.POST("/admin/fees/withdraw", custodyH.Withdraw)
	authed.PUT("/admin/fast-tokens/:token", adminH.SetFastToken)
	authed.PUT("/admin/messengers", adminH.SetMessengers)

	return &server{t: t, engine: r, tokens: tokens, token: token, d: d, repo: repo}
}

func (s *server) do(method, path string, as *common.Address, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if as != nil {
		token, _, err := s.tokens.Issue(*as)
		require.NoError(s.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func directTransfer(amount string) map[string]interface{} {
	return map[string]interface{}{
		"route":              "direct",
		"amount":             amount,
		"destination_domain": arbitrum,
		"mint_recipient":     "0x000000000000000000000000000000000000000000000000000000000000beef",
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{dispatcher.ErrBurnAmountTooLow, http.StatusBadRequest},
		{dispatcher.ErrUnknownRole, http.StatusBadRequest},
		{dispatcher.ErrUnauthorized, http.StatusForbidden},
		{dispatcher.ErrTokenNotSupported, http.StatusUnprocessableEntity},
		{dispatcher.ErrFeeNotFound, http.StatusUnprocessableEntity},
		{dispatcher.ErrMissingMessenger, http.StatusServiceUnavailable},
		{assert.AnError, http.StatusBadGateway},
		{dispatcher.ErrRefundFailed, http.StatusInternalServerError},
		{&dispatcher.PendingError{TxHash: common.HexToHash("0x01"), Err: assert.AnError}, http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, handlers.StatusFor(tt.err))
		})
	}
}

func TestTransferFlow(t *testing.T) {
	s := newServer(t)

	w, body := s.do(http.MethodPost, "/api/transfers", nil, directTransfer("1000000"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, body = s.do(http.MethodPost, "/api/transfers", &user, directTransfer("1000000"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "2000", data["fee"])
	assert.Equal(t, "998000", data["net_amount"])
	assert.Equal(t, user.Hex(), data["caller"])
	id := data["id"].(string)

	w, body = s.do(http.MethodGet, "/api/settlements/"+id, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, body["data"].(map[string]interface{})["id"])

	w, body = s.do(http.MethodGet, "/api/settlements?caller="+user.Hex()+"&route=direct", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["total"])

	w, _ = s.do(http.MethodGet, "/api/settlements/does-not-exist", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = s.do(http.MethodGet, "/api/custody", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	custody := body["data"].(map[string]interface{})
	assert.Equal(t, "2000", custody["held_fees"])
	assert.Equal(t, "0", custody["in_flight"])
	assert.Equal(t, "2000", custody["balance"])

	// only the collector can withdraw
	w, _ = s.do(http.MethodPost, "/api/admin/fees/withdraw", &user, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body = s.do(http.MethodPost, "/api/admin/fees/withdraw", &collector, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "2000", body["amount"])
	assert.Equal(t, "2000", s.token.Balance(collector).String())

	w, body = s.do(http.MethodGet, "/api/custody/withdrawals", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["total"])
}

func TestTransferErrors(t *testing.T) {
	s := newServer(t)

	tests := []struct {
		name string
		body map[string]interface{}
		want int
		code string
	}{
		{"amount not a number", directTransfer("ten"), http.StatusBadRequest, "validation"},
		{"amount not above fee", directTransfer("1000"), http.StatusBadRequest, "validation"},
		{"unconfigured destination", func() map[string]interface{} {
			b := directTransfer("1000000")
			b["destination_domain"] = 7
			return b
		}(), http.StatusUnprocessableEntity, "configuration"},
		{"unknown route", func() map[string]interface{} {
			b := directTransfer("1000000")
			b["route"] = "teleport"
			return b
		}(), http.StatusBadRequest, "validation"},
		{"fast route for token not allow-listed", func() map[string]interface{} {
			b := directTransfer("1000000")
			b["route"] = "fast"
			return b
		}(), http.StatusUnprocessableEntity, "policy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := s.do(http.MethodPost, "/api/transfers", &user, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.Equal(t, tt.code, body["code"])
		})
	}
	assert.Equal(t, "100000000", s.token.Balance(user).String())
}

func TestFeeEndpoints(t *testing.T) {
	s := newServer(t)

	w, body := s.do(http.MethodGet, "/api/fees/3/quote?amount=1000000", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	quote := body["data"].(map[string]interface{})
	assert.Equal(t, "2000", quote["fee"])
	assert.Equal(t, "998000", quote["net_amount"])

	w, _ = s.do(http.MethodGet, "/api/fees/9/quote?amount=1000000", nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, body = s.do(http.MethodGet, "/api/fees/9", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["data"].(map[string]interface{})["initialized"])

	w, _ = s.do(http.MethodGet, "/api/fees/abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	update := map[string]interface{}{"perc_fee_bips": 20, "flat_fee": "500"}
	w, _ = s.do(http.MethodPut, "/api/admin/fees/9", &owner, update)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body = s.do(http.MethodPut, "/api/admin/fees/9", &feeUpdater, update)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "500", body["data"].(map[string]interface{})["flat_fee"])

	w, _ = s.do(http.MethodPut, "/api/admin/fees/9", &feeUpdater, map[string]interface{}{"perc_fee_bips": 101})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = s.do(http.MethodGet, "/api/fees", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["data"], 2)
	assert.EqualValues(t, dispatcher.DefaultMaxPercFeeBips, body["max_perc_fee_bips"])
}

func TestRoleEndpoints(t *testing.T) {
	s := newServer(t)
	next := common.HexToAddress("0x00000000000000000000000000000000000000c1")

	tests := []struct {
		name string
		as   common.Address
		role string
		want int
	}{
		{"not the owner", user, "collector", http.StatusForbidden},
		{"unknown role", owner, "admin", http.StatusBadRequest},
		{"owner reassigns collector", owner, "collector", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := s.do(http.MethodPut, "/api/admin/roles/"+tt.role, &tt.as, map[string]string{"holder": next.Hex()})
			assert.Equal(t, tt.want, w.Code)
		})
	}

	w, body := s.do(http.MethodGet, "/api/roles", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, next.Hex(), body["data"].(map[string]interface{})["collector"])

	w, _ = s.do(http.MethodPut, "/api/admin/roles/owner", &owner, map[string]string{"holder": common.Address{}.Hex()})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminEndpoints(t *testing.T) {
	s := newServer(t)

	w, _ := s.do(http.MethodPut, "/api/admin/fast-tokens/"+usdcAddr.Hex(), &user, map[string]bool{"allowed": true})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(http.MethodPut, "/api/admin/fast-tokens/not-an-address", &owner, map[string]bool{"allowed": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(http.MethodPut, "/api/admin/fast-tokens/"+usdcAddr.Hex(), &owner, map[string]bool{"allowed": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, s.d.FastTransferAllowed(usdcAddr))

	w, body := s.do(http.MethodGet, "/api/fast-tokens", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{usdcAddr.Hex()}, body["data"])

	replacement := common.HexToAddress("0x00000000000000000000000000000000000000d1")
	w, _ = s.do(http.MethodPut, "/api/admin/messengers", &owner, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(http.MethodPut, "/api/admin/messengers", &user, map[string]string{"messenger": replacement.Hex()})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(http.MethodPut, "/api/admin/messengers", &owner, map[string]string{"messenger": replacement.Hex()})
	require.Equal(t, http.StatusOK, w.Code)

	// the next transfer goes through the replacement
	w, _ = s.do(http.MethodPost, "/api/transfers", &user, directTransfer("1000000"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "0", s.token.Allowance(custodian, messengerAddr).String())
	assert.NotEqual(t, "0", s.token.Allowance(custodian, replacement).String())
}

func TestLogin(t *testing.T) {
	s := newServer(t)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	w, body := s.do(http.MethodPost, "/api/auth/nonce", nil, map[string]string{"address": addr.Hex()})
	require.Equal(t, http.StatusOK, w.Code)
	nonce := body["nonce"].(string)
	message := body["message"].(string)
	assert.Equal(t, auth.LoginMessage(addr, nonce), message)

	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	sig[64] += 27

	login := map[string]string{"address": addr.Hex(), "nonce": nonce, "signature": hexutil.Encode(sig)}
	w, body = s.do(http.MethodPost, "/api/auth/login", nil, login)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	claims, err := s.tokens.Validate(body["token"].(string))
	require.NoError(t, err)
	caller, err := claims.Caller()
	require.NoError(t, err)
	assert.Equal(t, addr, caller)

	// nonces are single use
	w, body = s.do(http.MethodPost, "/api/auth/login", nil, login)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_NONCE", body["code"])

	// signature by another key
	w, body = s.do(http.MethodPost, "/api/auth/nonce", nil, map[string]string{"address": user.Hex()})
	require.Equal(t, http.StatusOK, w.Code)
	w, body = s.do(http.MethodPost, "/api/auth/login", nil, map[string]string{
		"address":   user.Hex(),
		"nonce":     body["nonce"].(string),
		"signature": hexutil.Encode(sig),
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_SIGNATURE", body["code"])
}

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", handlers.HealthHandler("svc", "simulated",
		handlers.HealthCheck{Name: "ok", Check: func(context.Context) error { return nil }},
		handlers.HealthCheck{Name: "down", Check: func(context.Context) error { return assert.AnError }},
	))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
	deps := body["dependencies"].(map[string]interface{})
	assert.Equal(t, "ok", deps["ok"])
	assert.Equal(t, assert.AnError.Error(), deps["down"])
}
