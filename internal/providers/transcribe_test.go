package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withFakeCredential(t *testing.T, keyName, value string) {
	t.Helper()
	origGet := keyringGet
	keyringGet = func(service, user string) (string, error) {
		if user == keyName {
			return value, nil
		}
		return origGet(service, user)
	}
	t.Cleanup(func() { keyringGet = origGet })
}

func TestTranscribeSendsMultipartAndReturnsText(t *testing.T) {
	withFakeCredential(t, "openai", "sk-test")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/audio/transcriptions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "note.ogg", header.Filename)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text": " remind me tomorrow at nine "}`))
	}))
	defer srv.Close()

	tr := NewTranscriber(srv.URL, "openai", "")
	text, err := tr.Transcribe(context.Background(), "note.ogg", []byte("fake-audio"))
	require.NoError(t, err)
	assert.Equal(t, "remind me tomorrow at nine", text)
}

func TestTranscribeRejectsEmptyAudio(t *testing.T) {
	tr := NewTranscriber("http://localhost:0", "openai", "")
	_, err := tr.Transcribe(context.Background(), "a.ogg", nil)
	assert.Error(t, err)
}

func TestTranscribeEmptyResultIsAnError(t *testing.T) {
	withFakeCredential(t, "openai", "sk-test")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text": ""}`))
	}))
	defer srv.Close()

	tr := NewTranscriber(srv.URL, "openai", "")
	_, err := tr.Transcribe(context.Background(), "a.ogg", []byte("x"))
	assert.Error(t, err)
}
