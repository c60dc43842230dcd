package integration

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stellarpay-ledger/config"
	httpHandler "stellarpay-ledger/internal/adapter/http/handler"
	redisStorage "stellarpay-ledger/internal/adapter/storage/redis"
	"stellarpay-ledger/internal/core/ports"
	"stellarpay-ledger/internal/service"
	"stellarpay-ledger/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testCallbackSecret = "operator-callback-secret"
	testMaxAmount      = int64(10_000_000)
	testCeiling        = int64(100_000_000)
)

// testApp builds a full application stack: real HTTP layer, middleware,
// handlers, and services over in-memory Redis (miniredis) and in-memory
// repos that emulate row locking.

type testApp struct {
	server      *httptest.Server
	redis       *miniredis.Miniredis
	entryRepo   *inMemoryEntryRepo
	ledgerSvc   ports.LedgerService
	transferSvc ports.TransferService
	log         zerolog.Logger
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	// Start miniredis
	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	// Redis stores
	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)
	nonceStore := redisStorage.NewNonceStore(rdb)

	// Core services with real implementations
	sigSvc := service.NewHMACSignatureService()
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService("test-jwt-secret-key-32bytes!!", 24*time.Hour, "test-issuer")

	// In-memory repos sharing one row-lock registry
	registry := newLockRegistry()
	accountRepo := newInMemoryAccountRepo(registry)
	entryRepo := newInMemoryEntryRepo(registry)
	transferRepo := newInMemoryTransferRepo()
	idempotencyRepo := newInMemoryIdempotencyRepo()
	transactor := newInMemoryTransactor(registry)

	// Business services
	log := logger.New("debug", false)
	authSvc := service.NewAuthService(accountRepo, hashSvc, tokenSvc)
	accountStore := service.NewAccountStore(accountRepo, testCeiling, log)
	ledgerSvc := service.NewLedgerService(
		entryRepo, accountStore, idempotencyRepo, idempotencyCache, transactor,
		testMaxAmount, 72*time.Hour, log,
	)
	transferSvc := service.NewTransferService(
		entryRepo, transferRepo, accountStore, ledgerSvc, idempotencyRepo,
		idempotencyCache, transactor, testMaxAmount, log,
	)
	gateway := service.NewConfirmationGateway(entryRepo, ledgerSvc, transferSvc, log)
	projectionSvc := service.NewProjectionService(accountRepo, entryRepo)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:       authSvc,
		LedgerSvc:     ledgerSvc,
		TransferSvc:   transferSvc,
		ProjectionSvc: projectionSvc,
		Consumer:      gateway,
		SigSvc:        sigSvc,
		NonceStore:    nonceStore,
		TokenSvc:      tokenSvc,
		Operator: config.OperatorConfig{
			CallbackSecret: testCallbackSecret,
			MaxDrift:       60 * time.Second,
			NonceTTL:       120 * time.Second,
		},
		Logger: log,
	})

	server := httptest.NewServer(router)

	return &testApp{
		server:      server,
		redis:       mr,
		entryRepo:   entryRepo,
		ledgerSvc:   ledgerSvc,
		transferSvc: transferSvc,
		log:         log,
	}
}

func (a *testApp) close() {
	a.server.Close()
	a.redis.Close()
}

// --- Integration Tests ---

func TestIntegration_HealthCheck(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	resp, err := http.Get(app.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestIntegration_RegisterAndLogin(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	// Register
	regBody, _ := json.Marshal(map[string]string{
		"username": "jean_kampala",
		"password": "StrongPass123!",
		"country":  "UG",
		"msisdn":   "+256700000001",
		"operator": "MTN MoMo",
	})
	resp, err := http.Post(app.server.URL+"/api/v1/auth/register", "application/json", bytes.NewReader(regBody))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var regResp map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&regResp))
	data := regResp["data"].(map[string]interface{})
	assert.NotEmpty(t, data["account_id"])
	assert.Equal(t, "ACTIVE", data["status"])

	// Login
	loginBody, _ := json.Marshal(map[string]string{
		"username": "jean_kampala",
		"password": "StrongPass123!",
	})
	resp2, err := http.Post(app.server.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(loginBody))
	require.NoError(t, err)
	defer resp2.Body.Close()

	assert.Equal(t, http.StatusOK, resp2.StatusCode)

	var loginResp map[string]interface{}
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&loginResp))
	loginData := loginResp["data"].(map[string]interface{})
	assert.NotEmpty(t, loginData["token"])
}

func TestIntegration_LoginWrongCredentials(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	loginBody, _ := json.Marshal(map[string]string{
		"username": "nobody",
		"password": "wrongpass",
	})
	resp, err := http.Post(app.server.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(loginBody))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIntegration_DuplicateUsername(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	regBody, _ := json.Marshal(map[string]string{
		"username": "amina_gulu",
		"password": "StrongPass123!",
		"country":  "UG",
		"msisdn":   "+256700000002",
		"operator": "Airtel Money",
	})

	resp, err := http.Post(app.server.URL+"/api/v1/auth/register", "application/json", bytes.NewReader(regBody))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	// Same username, different MSISDN
	regBody2, _ := json.Marshal(map[string]string{
		"username": "amina_gulu",
		"password": "StrongPass123!",
		"country":  "UG",
		"msisdn":   "+256700000003",
		"operator": "Airtel Money",
	})
	resp2, err := http.Post(app.server.URL+"/api/v1/auth/register", "application/json", bytes.NewReader(regBody2))
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusConflict, resp2.StatusCode)
}

func TestIntegration_DepositConfirmFlow(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	token := registerAndLogin(t, app, "deposit_user", "+256701000001")

	// Stage a deposit
	entryID := stageDeposit(t, app, token, 500_000, "dep-001")

	// Operator confirms the cash-in
	resp := operatorConfirm(t, app, entryID, "MTN-REF-001", "confirmed", "")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Entry is now CONFIRMED
	tx := getTransaction(t, app, token, entryID)
	assert.Equal(t, "CONFIRMED", tx["status"])
	assert.Equal(t, "MTN-REF-001", tx["external_ref"])

	// Balance reflects the credit
	acc := getAccount(t, app, token)
	assert.Equal(t, float64(500_000), acc["balance"])
	assert.Equal(t, float64(500_000), acc["available"])
}

func TestIntegration_DepositFailedByOperator(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	token := registerAndLogin(t, app, "failed_dep_user", "+256701000002")
	entryID := stageDeposit(t, app, token, 500_000, "dep-fail-001")

	resp := operatorConfirm(t, app, entryID, "", "failed", "subscriber unreachable")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	tx := getTransaction(t, app, token, entryID)
	assert.Equal(t, "FAILED", tx["status"])
	assert.Equal(t, "subscriber unreachable", tx["failure_reason"])

	acc := getAccount(t, app, token)
	assert.Equal(t, float64(0), acc["balance"])
}

func TestIntegration_WithdrawReservesAndCommits(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	token := registerAndLogin(t, app, "withdraw_user", "+256701000003")
	fundAccount(t, app, token, 1_000_000)

	// Stage a withdrawal: funds are reserved, not yet gone
	wdBody, _ := json.Marshal(map[string]interface{}{
		"amount":          int64(300_000),
		"idempotency_key": "wd-001",
	})
	resp := authedPost(t, app, token, "/api/v1/transactions/withdraw", wdBody)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var wdResp map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&wdResp))
	entryID := wdResp["data"].(map[string]interface{})["id"].(string)

	acc := getAccount(t, app, token)
	assert.Equal(t, float64(1_000_000), acc["balance"])
	assert.Equal(t, float64(300_000), acc["reserved"])
	assert.Equal(t, float64(700_000), acc["available"])

	// Operator confirms the cash-out
	cResp := operatorConfirm(t, app, entryID, "MTN-WD-001", "confirmed", "")
	defer cResp.Body.Close()
	assert.Equal(t, http.StatusOK, cResp.StatusCode)

	acc = getAccount(t, app, token)
	assert.Equal(t, float64(700_000), acc["balance"])
	assert.Equal(t, float64(0), acc["reserved"])
}

func TestIntegration_WithdrawInsufficientFunds(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	token := registerAndLogin(t, app, "poor_user", "+256701000004")

	wdBody, _ := json.Marshal(map[string]interface{}{
		"amount":          int64(50_000),
		"idempotency_key": "wd-broke-001",
	})
	resp := authedPost(t, app, token, "/api/v1/transactions/withdraw", wdBody)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
}

func TestIntegration_CancelPendingDeposit(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	token := registerAndLogin(t, app, "cancel_user", "+256701000005")
	entryID := stageDeposit(t, app, token, 200_000, "dep-cancel-001")

	resp := authedPost(t, app, token, "/api/v1/transactions/"+entryID+"/cancel", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	tx := getTransaction(t, app, token, entryID)
	assert.Equal(t, "FAILED", tx["status"])
	assert.Equal(t, "cancelled", tx["failure_reason"])

	// A late operator confirmation is rejected: the entry already left PENDING
	lateResp := operatorConfirm(t, app, entryID, "LATE-REF", "confirmed", "")
	defer lateResp.Body.Close()
	assert.Equal(t, http.StatusConflict, lateResp.StatusCode)
}

func TestIntegration_DuplicateIdempotencyKey(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	token := registerAndLogin(t, app, "idem_user", "+256701000006")

	first := stageDeposit(t, app, token, 100_000, "dep-same-key")
	second := stageDeposit(t, app, token, 100_000, "dep-same-key")

	// Retry returns the original entry, no second side effect
	assert.Equal(t, first, second)
}

func TestIntegration_TransferEndToEnd(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	tokenA := registerAndLogin(t, app, "sender_kla", "+256702000001")
	tokenB := registerAndLogin(t, app, "receiver_gma", "+243810000001")
	fundAccount(t, app, tokenA, 1_000_000)

	accB := getAccount(t, app, tokenB)
	toAccountID := accB["id"].(string)

	// Initiate cross-border transfer
	trBody, _ := json.Marshal(map[string]interface{}{
		"to_account_id":   toAccountID,
		"amount":          int64(250_000),
		"idempotency_key": "tr-001",
	})
	resp := authedPost(t, app, tokenA, "/api/v1/transfers", trBody)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var trResp map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&trResp))
	trData := trResp["data"].(map[string]interface{})
	corrID := trData["correlation_id"].(string)
	outEntryID := trData["out_entry_id"].(string)
	assert.Equal(t, "PENDING", trData["status"])

	// Sender's funds are reserved while pending
	accA := getAccount(t, app, tokenA)
	assert.Equal(t, float64(250_000), accA["reserved"])

	// Recipient sees nothing yet
	accB = getAccount(t, app, tokenB)
	assert.Equal(t, float64(0), accB["balance"])

	// Operator confirms the out leg, which completes both legs
	cResp := operatorConfirm(t, app, outEntryID, "MTN-TR-001", "confirmed", "")
	defer cResp.Body.Close()
	require.Equal(t, http.StatusOK, cResp.StatusCode)

	// Transfer completed
	trGet := authedGet(t, app, tokenA, "/api/v1/transfers/"+corrID)
	defer trGet.Body.Close()
	var trFinal map[string]interface{}
	require.NoError(t, json.NewDecoder(trGet.Body).Decode(&trFinal))
	assert.Equal(t, "COMPLETED", trFinal["data"].(map[string]interface{})["status"])

	// Money moved
	accA = getAccount(t, app, tokenA)
	assert.Equal(t, float64(750_000), accA["balance"])
	assert.Equal(t, float64(0), accA["reserved"])

	accB = getAccount(t, app, tokenB)
	assert.Equal(t, float64(250_000), accB["balance"])
}

func TestIntegration_TransferRejectedByOperator(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	tokenA := registerAndLogin(t, app, "sender_rej", "+256702000002")
	tokenB := registerAndLogin(t, app, "receiver_rej", "+243810000002")
	fundAccount(t, app, tokenA, 500_000)

	accB := getAccount(t, app, tokenB)
	toAccountID := accB["id"].(string)

	trBody, _ := json.Marshal(map[string]interface{}{
		"to_account_id":   toAccountID,
		"amount":          int64(100_000),
		"idempotency_key": "tr-rej-001",
	})
	resp := authedPost(t, app, tokenA, "/api/v1/transfers", trBody)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var trResp map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&trResp))
	trData := trResp["data"].(map[string]interface{})
	outEntryID := trData["out_entry_id"].(string)

	// Operator rejects: both legs unwind
	cResp := operatorConfirm(t, app, outEntryID, "", "failed", "wallet suspended")
	defer cResp.Body.Close()
	require.Equal(t, http.StatusOK, cResp.StatusCode)

	accA := getAccount(t, app, tokenA)
	assert.Equal(t, float64(500_000), accA["balance"])
	assert.Equal(t, float64(0), accA["reserved"])

	accB = getAccount(t, app, tokenB)
	assert.Equal(t, float64(0), accB["balance"])
}

func TestIntegration_ListTransactions(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	token := registerAndLogin(t, app, "list_user", "+256701000007")
	fundAccount(t, app, token, 300_000)
	stageDeposit(t, app, token, 50_000, "dep-list-002")

	resp := authedGet(t, app, token, "/api/v1/transactions?page=1&page_size=10")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	data := body["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["total"])

	// Filter to pending only
	resp2 := authedGet(t, app, token, "/api/v1/transactions?status=PENDING")
	defer resp2.Body.Close()
	var body2 map[string]interface{}
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&body2))
	data2 := body2["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data2["total"])
}

func TestIntegration_HMAC_MissingHeaders(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	resp, err := http.Post(app.server.URL+"/api/v1/operator/confirmations", "application/json", bytes.NewReader([]byte("{}")))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIntegration_JWT_Unauthorized(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	req, _ := http.NewRequest(http.MethodGet, app.server.URL+"/api/v1/accounts/me", nil)
	// No Authorization header
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// --- Helpers ---

func registerAndLogin(t *testing.T, app *testApp, username, msisdn string) string {
	t.Helper()
	regBody, _ := json.Marshal(map[string]string{
		"username": username,
		"password": "StrongPass123!",
		"country":  "UG",
		"msisdn":   msisdn,
		"operator": "MTN MoMo",
	})
	resp, err := http.Post(app.server.URL+"/api/v1/auth/register", "application/json", bytes.NewReader(regBody))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	loginBody, _ := json.Marshal(map[string]string{
		"username": username,
		"password": "StrongPass123!",
	})
	resp2, err := http.Post(app.server.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(loginBody))
	require.NoError(t, err)
	defer resp2.Body.Close()

	bodyBytes, _ := io.ReadAll(resp2.Body)
	var loginResp map[string]interface{}
	require.NoError(t, json.Unmarshal(bodyBytes, &loginResp))
	data := loginResp["data"].(map[string]interface{})
	return data["token"].(string)
}

func authedPost(t *testing.T, app *testApp, token, path string, body []byte) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, app.server.URL+path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func authedGet(t *testing.T, app *testApp, token, path string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, app.server.URL+path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// stageDeposit stages a pending deposit and returns the entry id.
func stageDeposit(t *testing.T, app *testApp, token string, amount int64, key string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]interface{}{
		"amount":          amount,
		"idempotency_key": key,
	})
	resp := authedPost(t, app, token, "/api/v1/transactions/deposit", body)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var depResp map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&depResp))
	return depResp["data"].(map[string]interface{})["id"].(string)
}

// fundAccount deposits and confirms in one step.
func fundAccount(t *testing.T, app *testApp, token string, amount int64) {
	t.Helper()
	entryID := stageDeposit(t, app, token, amount, "fund-"+uuid.NewString())
	resp := operatorConfirm(t, app, entryID, "FUND-"+uuid.NewString(), "confirmed", "")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

// operatorConfirm posts a signed operator confirmation callback.
func operatorConfirm(t *testing.T, app *testApp, entryID, externalRef, outcome, reason string) *http.Response {
	t.Helper()
	payload := map[string]string{
		"transaction_id": entryID,
		"outcome":        outcome,
	}
	if externalRef != "" {
		payload["external_ref"] = externalRef
	}
	if reason != "" {
		payload["reason"] = reason
	}
	body, _ := json.Marshal(payload)

	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	nonce := uuid.NewString()

	canonical := fmt.Sprintf("POST|/api/v1/operator/confirmations|%s|%s|%s", timestamp, nonce, string(body))
	mac := hmac.New(sha256.New, []byte(testCallbackSecret))
	mac.Write([]byte(canonical))
	signature := hex.EncodeToString(mac.Sum(nil))

	req, _ := http.NewRequest(http.MethodPost, app.server.URL+"/api/v1/operator/confirmations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", signature)
	req.Header.Set("X-Timestamp", timestamp)
	req.Header.Set("X-Nonce", nonce)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func getTransaction(t *testing.T, app *testApp, token, entryID string) map[string]interface{} {
	t.Helper()
	resp := authedGet(t, app, token, "/api/v1/transactions/"+entryID)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body["data"].(map[string]interface{})
}

func getAccount(t *testing.T, app *testApp, token string) map[string]interface{} {
	t.Helper()
	resp := authedGet(t, app, token, "/api/v1/accounts/me")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body["data"].(map[string]interface{})
}
