package handlers

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RespondJSONWithETag encodes payload once, tags it with a validator derived
// from the encoded bytes and answers 304 when the client already holds it.
// Balances and ledger pages change on every posting, so a stale tag can
// never hide a new entry.
func RespondJSONWithETag(ctx *gin.Context, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		ctx.JSON(status, payload)
		return
	}

	tag := entityTag(body)
	ctx.Header("ETag", tag)

	method := ctx.Request.Method
	if (method == http.MethodGet || method == http.MethodHead) && clientHasTag(ctx.GetHeader("If-None-Match"), tag) {
		ctx.Status(http.StatusNotModified)
		return
	}

	ctx.Data(status, "application/json; charset=utf-8", body)
}

func entityTag(body []byte) string {
	sum := sha256.Sum256(body)
	// 16 bytes of the digest are plenty to tell two account views apart.
	return `"` + base64.RawURLEncoding.EncodeToString(sum[:16]) + `"`
}

// clientHasTag applies the weak comparison If-None-Match calls for.
func clientHasTag(header, tag string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}

	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == tag {
			return true
		}
	}

	return false
}
