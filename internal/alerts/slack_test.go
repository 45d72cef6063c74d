package alerts

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlackSender_PostsBlockKit(t *testing.T) {
	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewSlackSender(srv.URL)
	msg := Message{
		Header:  "[ALERT] Test Name spiking now",
		Reasons: []string{"Velocity +3.1σ", "Spread 3/3"},
		Buttons: []Button{{Label: "Assign Producer", ActionID: "assign_producer", Value: "eid:1"}},
	}
	require.NoError(t, sender.Send(context.Background(), msg))

	var payload struct {
		Blocks []map[string]interface{} `json:"blocks"`
	}
	require.NoError(t, json.Unmarshal(captured, &payload))
	require.Len(t, payload.Blocks, 3, "header, section, actions")
	assert.Equal(t, "header", payload.Blocks[0]["type"])
	assert.Equal(t, "section", payload.Blocks[1]["type"])
	assert.Equal(t, "actions", payload.Blocks[2]["type"])

	section := payload.Blocks[1]["text"].(map[string]interface{})
	assert.Equal(t, "Velocity +3.1σ | Spread 3/3", section["text"])
}

func TestSlackSender_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sender := NewSlackSender(srv.URL)
	err := sender.Send(context.Background(), Message{Header: "x"})
	assert.Error(t, err)
}

func TestSlackSender_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sender := NewSlackSender(srv.URL)
	for i := 0; i < 5; i++ {
		_ = sender.Send(context.Background(), Message{Header: "x"})
	}
	assert.Equal(t, 3, calls, "breaker trips after three consecutive failures")
}

func TestSlackSender_EmptyURLFailsFast(t *testing.T) {
	sender := NewSlackSender("")
	assert.Error(t, sender.Send(context.Background(), Message{Header: "x"}))
}
