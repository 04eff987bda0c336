package tests

import (
	"testing"
)

func TestImagekitAuthIsPublic(t *testing.T) {
	env := setupTestEnv(t)

	client := env.newClient()

	var params struct {
		Token     string `json:"token"`
		Expire    int64  `json:"expire"`
		Signature string `json:"signature"`
	}
	if err := client.Get("/api/imagekit/auth").Do(&params); err != nil {
		t.Fatal(err)
	}

	if params.Token == "" || params.Expire == 0 || len(params.Signature) != 40 {
		t.Fatalf("invalid auth params %+v", params)
	}
}
