package notify

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

// digestAuth answers an HTTP 401 Digest challenge for the connection
// request GET. Devices universally use MD5; qop=auth is honored when
// offered.
func digestAuth(challenge, method, uri, username, password string) (string, error) {
	params := parseChallenge(challenge)
	realm := params["realm"]
	nonce := params["nonce"]
	if nonce == "" {
		return "", fmt.Errorf("digest challenge missing nonce")
	}
	qop := params["qop"]
	opaque := params["opaque"]

	ha1 := md5Hex(username + ":" + realm + ":" + password)
	ha2 := md5Hex(method + ":" + uri)

	var response, cnonce string
	nc := "00000001"
	if strings.Contains(qop, "auth") {
		qop = "auth"
		cnonce = randomCnonce()
		response = md5Hex(ha1 + ":" + nonce + ":" + nc + ":" + cnonce + ":" + qop + ":" + ha2)
	} else {
		qop = ""
		response = md5Hex(ha1 + ":" + nonce + ":" + ha2)
	}

	var b strings.Builder
	fmt.Fprintf(&b, `Digest username="%s", realm="%s", nonce="%s", uri="%s", response="%s"`,
		username, realm, nonce, uri, response)
	if qop != "" {
		fmt.Fprintf(&b, `, qop=%s, nc=%s, cnonce="%s"`, qop, nc, cnonce)
	}
	if opaque != "" {
		fmt.Fprintf(&b, `, opaque="%s"`, opaque)
	}
	return b.String(), nil
}

// parseChallenge pulls the key="value" pairs out of a WWW-Authenticate
// Digest header. Device HTTP stacks are sloppy about quoting, so unquoted
// values are accepted too.
func parseChallenge(header string) map[string]string {
	header = strings.TrimSpace(strings.TrimPrefix(header, "Digest"))
	params := make(map[string]string)
	for _, part := range splitChallenge(header) {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		val := strings.Trim(strings.TrimSpace(kv[1]), `"`)
		params[key] = val
	}
	return params
}

// splitChallenge splits on commas outside quotes.
func splitChallenge(s string) []string {
	var parts []string
	var cur strings.Builder
	inQuotes := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			cur.WriteRune(r)
		case r == ',' && !inQuotes:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func randomCnonce() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "deadbeefcafef00d"
	}
	return hex.EncodeToString(buf)
}

func hmacSHA1Hex(key, text string) string {
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(text))
	return hex.EncodeToString(mac.Sum(nil))
}

func challengeFrom(resp *http.Response) string {
	return resp.Header.Get("WWW-Authenticate")
}
