package services

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"revx_backend/utils"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

const imagekitTokenLifetime = 30 * time.Minute

// ImagekitService signs upload authentication parameters for the imagekit.io
// client SDK. The endpoint is unauthenticated, matching what the upload widget
// expects.
type ImagekitService struct {
	privateKey string
}

func (s *ImagekitService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/auth", s.Auth)

	return r
}

type imagekitAuthParams struct {
	Token     string `json:"token"`
	Expire    int64  `json:"expire"`
	Signature string `json:"signature"`
}

func (s *ImagekitService) Auth(w http.ResponseWriter, r *http.Request) {
	if s.privateKey == "" {
		utils.WriteErrorDetail(w, "imagekit private key is not configured", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	token := strconv.FormatInt(now.UnixMilli(), 10)
	expire := now.Add(imagekitTokenLifetime).Unix()

	mac := hmac.New(sha1.New, []byte(s.privateKey))
	mac.Write([]byte(token + strconv.FormatInt(expire, 10)))
	signature := hex.EncodeToString(mac.Sum(nil))

	utils.WriteJsonResponse(w, "", imagekitAuthParams{
		Token:     token,
		Expire:    expire,
		Signature: signature,
	})
}
