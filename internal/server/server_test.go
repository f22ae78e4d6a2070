package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobledger/internal/db"
	"jobledger/internal/engine"
	"jobledger/internal/engine/auth"
	"jobledger/internal/migrate"
	"jobledger/internal/seed"
)

const testJWTSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	Auth   auth.Authenticator
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err, "open db")
	require.NoError(t, migrate.Migrate(conn), "migrate")
	f, err := seed.Default()
	require.NoError(t, err)
	require.NoError(t, seed.Apply(context.Background(), conn, f, seed.Options{}), "seed")

	e := engine.New(conn, zerolog.Nop())
	a := auth.Authenticator{Profiles: e.Repo, JWTSecret: testJWTSecret, AllowProfileHeader: true}
	handler, err := New(Config{Engine: e, Auth: a, Log: zerolog.Nop()})
	require.NoError(t, err, "build handler")
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err, "listen")
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		Auth:   a,
		client: &http.Client{Timeout: 10 * time.Second},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
}

func asProfile(id string) map[string]string {
	return map[string]string{"profile_id": id}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err, "marshal body")
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err, "new request")
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	require.NoError(t, err, "do request")
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err, "read body")
	return res, data
}

func decodeMap(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m), string(data))
	return m
}

func decodeList(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var l []map[string]any
	require.NoError(t, json.Unmarshal(data, &l), string(data))
	return l
}

func TestGetContractRequiresParticipant(t *testing.T) {
	srv := newTestServer(t)
	c := srv.Client()

	res, _ := doJSON(t, c, http.MethodGet, srv.URL+"/contracts/1", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode, "no header")

	res, _ = doJSON(t, c, http.MethodGet, srv.URL+"/contracts/1", nil, asProfile("2"))
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode, "not a participant")

	res, _ = doJSON(t, c, http.MethodGet, srv.URL+"/contracts/1", nil, asProfile("99"))
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode, "unknown profile")

	want := map[string]any{
		"id":           float64(1),
		"terms":        "bla bla bla",
		"status":       "terminated",
		"ClientId":     float64(1),
		"ContractorId": float64(5),
	}
	for _, caller := range []string{"1", "5"} {
		res, data := doJSON(t, c, http.MethodGet, srv.URL+"/contracts/1", nil, asProfile(caller))
		require.Equal(t, http.StatusOK, res.StatusCode, string(data))
		got := decodeMap(t, data)
		delete(got, "createdAt")
		delete(got, "updatedAt")
		assert.Equal(t, want, got, "caller %s", caller)
	}

	res, data := doJSON(t, c, http.MethodGet, srv.URL+"/contracts/999", nil, asProfile("1"))
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "not_found", decodeMap(t, data)["error"].(map[string]any)["code"])
}

func TestListContractsSkipsTerminated(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/contracts", nil, asProfile("6"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	list := decodeList(t, data)
	require.Len(t, list, 3)
	for i, id := range []float64{2, 3, 8} {
		assert.Equal(t, id, list[i]["id"])
		assert.Equal(t, "in_progress", list[i]["status"])
	}
}

func TestUnpaidJobs(t *testing.T) {
	srv := newTestServer(t)
	c := srv.Client()

	res, data := doJSON(t, c, http.MethodGet, srv.URL+"/jobs/unpaid", nil, asProfile("1"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	list := decodeList(t, data)
	require.Len(t, list, 1)
	assert.Equal(t, float64(201), list[0]["price"])
	assert.Equal(t, float64(2), list[0]["ContractId"])

	res, data = doJSON(t, c, http.MethodGet, srv.URL+"/jobs/unpaid", nil, asProfile("6"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	list = decodeList(t, data)
	require.Len(t, list, 2)
	assert.Equal(t, float64(201), list[0]["price"])
	assert.Equal(t, float64(2), list[0]["ContractId"])
	assert.Equal(t, float64(202), list[1]["price"])
	assert.Equal(t, float64(3), list[1]["ContractId"])

	res, _ = doJSON(t, c, http.MethodGet, srv.URL+"/jobs/unpaid", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestPayJob(t *testing.T) {
	srv := newTestServer(t)
	c := srv.Client()

	res, data := doJSON(t, c, http.MethodPost, srv.URL+"/jobs/2/pay", nil, asProfile("1"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, map[string]any{"result": "OK"}, decodeMap(t, data))

	res, data = doJSON(t, c, http.MethodPost, srv.URL+"/jobs/2/pay", nil, asProfile("1"))
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, map[string]any{"result": "ALREADY_PAID"}, decodeMap(t, data))

	res, data = doJSON(t, c, http.MethodPost, srv.URL+"/jobs/5/pay", nil, asProfile("4"))
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, map[string]any{"result": "NOT_ENOUGH_BALANCE"}, decodeMap(t, data))

	res, _ = doJSON(t, c, http.MethodPost, srv.URL+"/jobs/999/pay", nil, asProfile("1"))
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, data = doJSON(t, c, http.MethodPost, srv.URL+"/jobs/3/pay", nil, asProfile("5"))
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Contains(t, string(data), `"unauthorized"`)

	res, data = doJSON(t, c, http.MethodGet, srv.URL+"/profiles/me", nil, asProfile("6"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, float64(223), decodeMap(t, data)["balance"])
}

func TestDeposit(t *testing.T) {
	srv := newTestServer(t)
	c := srv.Client()
	body := func(v float64) map[string]any { return map[string]any{"addedBalance": v} }

	res, _ := doJSON(t, c, http.MethodPost, srv.URL+"/balances/deposit/1", body(1), nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode, "no header")

	res, _ = doJSON(t, c, http.MethodPost, srv.URL+"/balances/deposit/5", body(1), asProfile("5"))
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode, "contractor")

	res, _ = doJSON(t, c, http.MethodPost, srv.URL+"/balances/deposit/1", body(1), asProfile("2"))
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode, "someone else's balance")

	res, data := doJSON(t, c, http.MethodPost, srv.URL+"/balances/deposit/1", body(300), asProfile("1"))
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, map[string]any{"result": "EXCEEDED_25_PERCENT"}, decodeMap(t, data))

	res, data = doJSON(t, c, http.MethodPost, srv.URL+"/balances/deposit/1", body(-3), asProfile("1"))
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, data = doJSON(t, c, http.MethodPost, srv.URL+"/balances/deposit/1", body(80), asProfile("1"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, "OK", decodeMap(t, data)["result"])

	res, data = doJSON(t, c, http.MethodGet, srv.URL+"/profiles/me", nil, asProfile("1"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, float64(1230), decodeMap(t, data)["balance"])
}

func TestBestProfession(t *testing.T) {
	srv := newTestServer(t)
	c := srv.Client()

	res, data := doJSON(t, c, http.MethodGet, srv.URL+"/admin/best-profession?start=2020-08-10&end=2020-08-14", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, map[string]any{"bestProfession": "Programmer"}, decodeMap(t, data))

	res, data = doJSON(t, c, http.MethodGet, srv.URL+"/admin/best-profession?start=2030-01-01&end=2030-01-02", nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "no_data", decodeMap(t, data)["error"].(map[string]any)["code"])

	res, _ = doJSON(t, c, http.MethodGet, srv.URL+"/admin/best-profession?start=yesterday&end=2020-08-14", nil, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = doJSON(t, c, http.MethodGet, srv.URL+"/admin/best-profession?start=2020-08-14&end=2020-08-10", nil, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestBestClients(t *testing.T) {
	srv := newTestServer(t)
	c := srv.Client()
	base := srv.URL + "/admin/best-clients?start=2020-08-10&end=2020-08-17"

	res, data := doJSON(t, c, http.MethodGet, base+"&limit=3", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	list := decodeList(t, data)
	require.Len(t, list, 3)
	assert.Equal(t, map[string]any{"id": float64(4), "fullName": "Ash Kethcum", "paid": float64(2020)}, list[0])
	assert.Equal(t, map[string]any{"id": float64(1), "fullName": "Harry Potter", "paid": float64(442)}, list[1])
	assert.Equal(t, map[string]any{"id": float64(2), "fullName": "Mr Robot", "paid": float64(442)}, list[2])

	res, data = doJSON(t, c, http.MethodGet, base, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Len(t, decodeList(t, data), 2)

	res, data = doJSON(t, c, http.MethodGet, srv.URL+"/admin/best-clients?start=2030-01-01&end=2030-01-02", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, "[]", strings.TrimSpace(string(data)))

	for _, limit := range []string{"abc", "0", "-1"} {
		res, _ = doJSON(t, c, http.MethodGet, base+"&limit="+limit, nil, nil)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode, "limit %s", limit)
	}
}

func TestBearerTokenAuth(t *testing.T) {
	srv := newTestServer(t)
	tok, err := srv.Auth.IssueToken(5, time.Hour, time.Now())
	require.NoError(t, err)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/contracts/1", nil, map[string]string{"Authorization": "Bearer " + tok})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/contracts/1", nil, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/contracts/1", nil, map[string]string{"Authorization": "Basic abc"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestPublicEndpoints(t *testing.T) {
	srv := newTestServer(t)
	c := srv.Client()

	res, data := doJSON(t, c, http.MethodGet, srv.URL+"/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "ok", decodeMap(t, data)["status"])

	res, data = doJSON(t, c, http.MethodGet, srv.URL+"/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), "/jobs/{job_id}/pay")
	assert.Contains(t, string(data), "profileHeader")

	res, _ = doJSON(t, c, http.MethodGet, srv.URL+"/docs", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, data = doJSON(t, c, http.MethodGet, srv.URL+"/profiles/me", nil, asProfile("1"))
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.NotContains(t, decodeMap(t, data), "$schema")

	doJSON(t, c, http.MethodPost, srv.URL+"/jobs/2/pay", nil, asProfile("1"))
	res, data = doJSON(t, c, http.MethodGet, srv.URL+"/metrics", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), `jobledger_payments_total{result="OK"}`)
}

func TestOpenAPIServedConcurrently(t *testing.T) {
	srv := newTestServer(t)
	var wg sync.WaitGroup
	bodies := make([]string, 8)
	for i := range bodies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := srv.Client().Get(srv.URL + "/openapi.json")
			if err != nil {
				return
			}
			defer res.Body.Close()
			data, _ := io.ReadAll(res.Body)
			bodies[i] = string(data)
		}(i)
	}
	wg.Wait()
	for i, b := range bodies {
		assert.Contains(t, b, "bearerAuth", "request %d", i)
		assert.Equal(t, bodies[0], b, "request %d", i)
	}
}
