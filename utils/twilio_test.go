package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhatsAppAddress(t *testing.T) {
	assert.Equal(t, "whatsapp:+254700000001", WhatsAppAddress("+254700000001"))
	assert.Equal(t, "whatsapp:+254700000001", WhatsAppAddress("whatsapp:+254700000001"))
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "+254700000001", NormalizePhone("whatsapp:+254700000001"))
	assert.Equal(t, "+254700000001", NormalizePhone("+254700000001"))
	assert.Equal(t, "", NormalizePhone(""))
}

func TestTwilioClientSend(t *testing.T) {
	var gotPath, gotFrom, gotTo, gotBody string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseForm())
		gotFrom = r.PostFormValue("From")
		gotTo = r.PostFormValue("To")
		gotBody = r.PostFormValue("Body")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid": "SM123", "status": "queued"}`))
	}))
	defer server.Close()

	client := NewTwilioClient("AC42", "token", "+15550001111", server.URL)

	sid, err := client.Send("+254700000001", "hello there")
	require.NoError(t, err)

	assert.Equal(t, "SM123", sid)
	assert.Equal(t, "/2010-04-01/Accounts/AC42/Messages.json", gotPath)
	assert.Equal(t, "whatsapp:+15550001111", gotFrom)
	assert.Equal(t, "whatsapp:+254700000001", gotTo)
	assert.Equal(t, "hello there", gotBody)
}

func TestTwilioClientSendAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code": 20003, "message": "Authenticate"}`))
	}))
	defer server.Close()

	client := NewTwilioClient("AC42", "bad-token", "+15550001111", server.URL)

	_, err := client.Send("+254700000001", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "Authenticate")
}

func TestTwilioClientSendMissingSID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status": "queued"}`))
	}))
	defer server.Close()

	client := NewTwilioClient("AC42", "token", "+15550001111", server.URL)

	_, err := client.Send("+254700000001", "hello")
	assert.Error(t, err)
}
