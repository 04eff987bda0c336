package services

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestImagekitAuthSignature(t *testing.T) {
	service := ImagekitService{privateKey: "private_abc123"}

	req := httptest.NewRequest("GET", "/auth", nil)
	w := httptest.NewRecorder()
	service.Routes().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Status string             `json:"status"`
		Data   imagekitAuthParams `json:"data"`
	}
	err := json.NewDecoder(w.Result().Body).Decode(&envelope)
	assert.NoError(t, err)
	assert.Equal(t, "success", envelope.Status)

	params := envelope.Data

	tokenMillis, err := strconv.ParseInt(params.Token, 10, 64)
	assert.NoError(t, err)
	assert.InDelta(t, time.Now().UnixMilli(), tokenMillis, float64(5*time.Second/time.Millisecond))
	assert.InDelta(t, time.Now().Add(imagekitTokenLifetime).Unix(), params.Expire, 5)

	mac := hmac.New(sha1.New, []byte("private_abc123"))
	mac.Write([]byte(params.Token + strconv.FormatInt(params.Expire, 10)))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), params.Signature)
}

func TestImagekitAuthMissingKey(t *testing.T) {
	service := ImagekitService{}

	req := httptest.NewRequest("GET", "/auth", nil)
	w := httptest.NewRecorder()
	service.Routes().ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
