package classifier

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/psds-microservice/agri-support-service/internal/errs"
	"github.com/psds-microservice/agri-support-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var leaf = &model.Upload{Filename: "leaf.png", ContentType: "image/png", Data: []byte("png-bytes")}

func TestClassifySendsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "rice", r.FormValue("crop"))
		f, hdr, err := r.FormFile("image")
		if !assert.NoError(t, err) {
			return
		}
		data, _ := io.ReadAll(f)
		assert.Equal(t, "png-bytes", string(data))
		assert.Equal(t, "leaf.png", hdr.Filename)
		assert.Equal(t, "image/png", hdr.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"crop":"rice","model":"SVM","prediction":"Blast","confidence":0.91,
			"topk":[{"label":"Blast","score":0.91},{"label":"Brown spot","score":0.05}],
			"leaf_gate":{"ml_confidence":0.99}}`)
	}))
	defer srv.Close()

	p, err := NewClient(srv.URL, time.Second).Classify(context.Background(), "rice", leaf)
	require.NoError(t, err)
	assert.Equal(t, "Blast", p.Label())
	assert.InDelta(t, 0.91, *p.Confidence, 1e-9)
	require.Len(t, p.TopK, 2)
	assert.JSONEq(t, `{"ml_confidence":0.99}`, string(p.LeafGate))
}

func TestClassifyBodyErrorIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"error":"Please upload a clear leaf photo only.","details":{"ok":false}}`)
	}))
	defer srv.Close()

	p, err := NewClient(srv.URL, time.Second).Classify(context.Background(), "rice", leaf)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrUpstream))
	require.NotNil(t, p)
	assert.Equal(t, "Please upload a clear leaf photo only.", p.Error)
}

func TestClassifyFailures(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()
	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>")
	}))
	defer garbage.Close()

	for name, c := range map[string]*Client{
		"timeout":        NewClient(slow.URL, 50*time.Millisecond),
		"status":         NewClient(broken.URL, time.Second),
		"decode":         NewClient(garbage.URL, time.Second),
		"not configured": NewClient("", time.Second),
	} {
		t.Run(name, func(t *testing.T) {
			p, err := c.Classify(context.Background(), "rice", leaf)
			assert.Nil(t, p)
			assert.True(t, errors.Is(err, errs.ErrUpstream), "got %v", err)
		})
	}
}

func TestLabelFallback(t *testing.T) {
	assert.Equal(t, "Unknown", (&Prediction{}).Label())
	var nilPred *Prediction
	assert.Equal(t, "Unknown", nilPred.Label())
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	}))
	defer srv.Close()
	assert.NoError(t, NewClient(srv.URL, time.Second).Health(context.Background()))
	assert.Error(t, NewClient("", time.Second).Health(context.Background()))
}
