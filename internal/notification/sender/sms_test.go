package sender

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallbiznis/cabletrack/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTwilio(url string) *TwilioSMSSender {
	return NewTwilioSMSSender(config.SMSConfig{
		AccountSID:  "AC123",
		AuthToken:   "secret",
		FromNumber:  "+15550000",
		APIBaseURL:  url,
		HTTPTimeout: time.Second,
	})
}

func TestTwilioSendsForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "secret", pass)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "+15551234", r.PostForm.Get("To"))
		assert.Equal(t, "+15550000", r.PostForm.Get("From"))
		assert.Equal(t, "hello", r.PostForm.Get("Body"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1"}`))
	}))
	defer srv.Close()

	require.NoError(t, newTwilio(srv.URL).SendSMS(context.Background(), "+15551234", "hello"))
}

func TestTwilioClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number"}`))
	}))
	defer srv.Close()

	sms := WithSMSRetry(newTwilio(srv.URL), RetryPolicy{MaxTries: 3, InitialInterval: time.Millisecond, MaxElapsed: time.Second})
	err := sms.SendSMS(context.Background(), "bogus", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid 'To' Phone Number")
	assert.Equal(t, int32(1), calls.Load())
}

func TestTwilioServerErrorIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sms := WithSMSRetry(newTwilio(srv.URL), RetryPolicy{MaxTries: 3, InitialInterval: time.Millisecond, MaxElapsed: time.Second})
	require.NoError(t, sms.SendSMS(context.Background(), "+15551234", "hello"))
	assert.Equal(t, int32(2), calls.Load())
}
