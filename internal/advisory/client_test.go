package advisory

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/psds-microservice/agri-support-service/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdviseReadsAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "rice", body["crop_name"])
		assert.Equal(t, "Blast", body["disease_name"])
		_, _ = io.WriteString(w, `{"answer":"Spray tricyclazole at 0.6 g/l."}`)
	}))
	defer srv.Close()

	got, err := NewClient(srv.URL, time.Second).Advise(context.Background(), "rice", "Blast")
	require.NoError(t, err)
	assert.Equal(t, "Spray tricyclazole at 0.6 g/l.", got)
}

func TestAdviseFallsBackToRawBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"output":"drain the field"}`)
	}))
	defer srv.Close()

	got, err := NewClient(srv.URL, time.Second).Advise(context.Background(), "rice", "Blast")
	require.NoError(t, err)
	assert.JSONEq(t, `{"output":"drain the field"}`, got)
}

func TestAdviseFailuresAreUpstream(t *testing.T) {
	hung := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer hung.Close()
	notJSON := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "oops")
	}))
	defer notJSON.Close()

	for name, c := range map[string]*Client{
		"timeout":        NewClient(hung.URL, 50*time.Millisecond),
		"malformed":      NewClient(notJSON.URL, time.Second),
		"not configured": NewClient("", time.Second),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := c.Advise(context.Background(), "rice", "Blast")
			assert.True(t, errors.Is(err, errs.ErrUpstream), "got %v", err)
		})
	}
}
