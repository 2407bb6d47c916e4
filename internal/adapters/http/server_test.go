package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	weft "github.com/aretw0/weft"
	wefthttp "github.com/aretw0/weft/internal/adapters/http"
	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const greeterFlows = `
flows:
  - id: greeter
    activated: true
    steps:
      - send:
          action: UtteranceBot
          arguments:
            text: "'hello'"
      - match:
          type: UtteranceUserActionFinished
          save_to: utt
      - send:
          action: UtteranceBot
          arguments:
            text: "'you said ' + utt.final_transcript"
`

func newTestServer(t *testing.T, opts ...weft.Option) *httptest.Server {
	t.Helper()
	loader := memory.NewLoader()
	loader.Add("greeter.yaml", []byte(greeterFlows))

	engine, err := weft.New("", append(opts, weft.WithLoader(loader))...)
	require.NoError(t, err)

	ts := httptest.NewServer(wefthttp.NewServer(engine).Handler())
	t.Cleanup(ts.Close)
	return ts
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
	Events    []struct {
		Type          string         `json:"type"`
		Arguments     map[string]any `json:"arguments"`
		CorrelationID string         `json:"correlation_id"`
	} `json:"events"`
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestServer_SessionLifecycle(t *testing.T) {
	ts := newTestServer(t)

	// Creating a session bootstraps the activated greeter, which
	// immediately wants to speak.
	resp := postJSON(t, ts.URL+"/sessions", map[string]any{"session_id": "s1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[sessionResponse](t, resp)
	assert.Equal(t, "s1", created.SessionID)
	require.Len(t, created.Events, 1)
	assert.Equal(t, "StartUtteranceBotAction", created.Events[0].Type)
	assert.Equal(t, "hello", created.Events[0].Arguments["text"])

	// Completing the utterance advances the flow to the user match.
	resp = postJSON(t, ts.URL+"/sessions/s1/events", map[string]any{
		"type":           "UtteranceBotActionFinished",
		"correlation_id": created.Events[0].CorrelationID,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	finished := decode[sessionResponse](t, resp)
	assert.Empty(t, finished.Events)

	// A user utterance triggers the reply.
	resp = postJSON(t, ts.URL+"/sessions/s1/events", map[string]any{
		"type":      "UtteranceUserActionFinished",
		"arguments": map[string]any{"final_transcript": "hi"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	reply := decode[sessionResponse](t, resp)
	require.Len(t, reply.Events, 1)
	assert.Equal(t, "StartUtteranceBotAction", reply.Events[0].Type)
	assert.Equal(t, "you said hi", reply.Events[0].Arguments["text"])
}

func TestServer_GetSessionStatus(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/sessions", map[string]any{"session_id": "s1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(ts.URL + "/sessions/s1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	status := decode[struct {
		SessionID string `json:"session_id"`
		Instances []struct {
			FlowID string `json:"flow_id"`
			Status string `json:"status"`
		} `json:"instances"`
	}](t, resp)
	assert.Equal(t, "s1", status.SessionID)
	require.Len(t, status.Instances, 1)
	assert.Equal(t, "greeter", status.Instances[0].FlowID)
	assert.Equal(t, "blocked", status.Instances[0].Status)
}

func TestServer_UnknownSession(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/sessions/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_PersistedSessionSurvivesEviction(t *testing.T) {
	store := memory.New()
	ts := newTestServer(t, weft.WithStore(store))

	resp := postJSON(t, ts.URL+"/sessions", map[string]any{"session_id": "durable"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[sessionResponse](t, resp)

	// A second server instance over the same store revives the session
	// from its snapshot.
	loader := memory.NewLoader()
	loader.Add("greeter.yaml", []byte(greeterFlows))
	engine2, err := weft.New("", weft.WithLoader(loader), weft.WithStore(store))
	require.NoError(t, err)
	ts2 := httptest.NewServer(wefthttp.NewServer(engine2).Handler())
	defer ts2.Close()

	resp = postJSON(t, ts2.URL+"/sessions/durable/events", map[string]any{
		"type":           "UtteranceBotActionFinished",
		"correlation_id": created.Events[0].CorrelationID,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestServer_Healthz(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_BadEventRejected(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/sessions", map[string]any{"session_id": "s1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/sessions/s1/events", map[string]any{"arguments": map[string]any{}})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	r, err := http.Post(ts.URL+"/sessions/s1/events", "application/json", bytes.NewReader([]byte("{")))
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)
}
