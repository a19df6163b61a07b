package flowfence

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// KeyExtractor derives a rate limit key from an HTTP request. The key
// identifies the client: an IP address, an API key, a session, a user.
type KeyExtractor func(*http.Request) (string, error)

// ExtractIP keys by the connection's remote IP address.
func ExtractIP() KeyExtractor {
	return func(r *http.Request) (string, error) {
		ip := remoteIP(r)
		if ip == "" {
			return "", fmt.Errorf("%w: empty IP address", ErrKeyExtractionFailed)
		}
		return "ip:" + ip, nil
	}
}

// ExtractIPWithProxy keys by client IP, honoring proxy headers: the first
// entry of X-Forwarded-For, then X-Real-IP, then the connection's remote
// address. Use only behind a trusted proxy; the headers are client-supplied
// otherwise and trivially spoofable.
func ExtractIPWithProxy() KeyExtractor {
	return func(r *http.Request) (string, error) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return "ip:" + ip, nil
			}
		}

		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return "ip:" + xri, nil
		}

		ip := remoteIP(r)
		if ip == "" {
			return "", fmt.Errorf("%w: empty IP address", ErrKeyExtractionFailed)
		}
		return "ip:" + ip, nil
	}
}

// ExtractHeader keys by the value of the named header.
// Example: ExtractHeader("X-API-Key").
func ExtractHeader(headerName string) KeyExtractor {
	return func(r *http.Request) (string, error) {
		value := r.Header.Get(headerName)
		if value == "" {
			return "", fmt.Errorf("%w: header %s not found or empty", ErrKeyExtractionFailed, headerName)
		}
		return fmt.Sprintf("header:%s:%s", headerName, value), nil
	}
}

// ExtractBearer keys by the token in "Authorization: Bearer <token>". The key
// carries a SHA-256 fingerprint of the token, not the token itself, so raw
// credentials never land in bucket stores, snapshots, or logs.
func ExtractBearer() KeyExtractor {
	return func(r *http.Request) (string, error) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			return "", fmt.Errorf("%w: Authorization header not found", ErrKeyExtractionFailed)
		}

		scheme, token, found := strings.Cut(auth, " ")
		if !found || !strings.EqualFold(scheme, "bearer") {
			return "", fmt.Errorf("%w: invalid Authorization header format", ErrKeyExtractionFailed)
		}
		token = strings.TrimSpace(token)
		if token == "" {
			return "", fmt.Errorf("%w: empty bearer token", ErrKeyExtractionFailed)
		}

		sum := sha256.Sum256([]byte(token))
		return "bearer:" + hex.EncodeToString(sum[:8]), nil
	}
}

// ExtractCookie keys by the value of the named cookie.
// Example: ExtractCookie("session_id").
func ExtractCookie(cookieName string) KeyExtractor {
	return func(r *http.Request) (string, error) {
		cookie, err := r.Cookie(cookieName)
		if err != nil {
			return "", fmt.Errorf("%w: cookie %s not found: %v", ErrKeyExtractionFailed, cookieName, err)
		}
		if cookie.Value == "" {
			return "", fmt.Errorf("%w: cookie %s has empty value", ErrKeyExtractionFailed, cookieName)
		}
		return fmt.Sprintf("cookie:%s:%s", cookieName, cookie.Value), nil
	}
}

// ExtractStatic always returns the same key, putting every client in one
// shared bucket. Useful for a global ceiling on an expensive endpoint.
func ExtractStatic(key string) KeyExtractor {
	return func(r *http.Request) (string, error) {
		if key == "" {
			return "", fmt.Errorf("%w: static key is empty", ErrKeyExtractionFailed)
		}
		return key, nil
	}
}

// ExtractComposite tries extractors in order and returns the first key that
// succeeds. Typical use: API key when present, client IP otherwise.
//
//	extractor := ExtractComposite(
//	    ExtractHeader("X-API-Key"),
//	    ExtractIPWithProxy(),
//	)
func ExtractComposite(extractors ...KeyExtractor) KeyExtractor {
	if len(extractors) == 0 {
		return func(r *http.Request) (string, error) {
			return "", fmt.Errorf("%w: no extractors provided", ErrKeyExtractionFailed)
		}
	}

	return func(r *http.Request) (string, error) {
		var lastErr error
		for _, extractor := range extractors {
			key, err := extractor(r)
			if err == nil && key != "" {
				return key, nil
			}
			lastErr = err
		}
		if lastErr != nil {
			return "", fmt.Errorf("%w: all extractors failed: %v", ErrKeyExtractionFailed, lastErr)
		}
		return "", fmt.Errorf("%w: all extractors returned empty key", ErrKeyExtractionFailed)
	}
}

// ParseKeyExtractorConfig builds a KeyExtractor from a config string:
//   - "ip"                -> ExtractIP()
//   - "ip-proxy"          -> ExtractIPWithProxy()
//   - "header:X-API-Key"  -> ExtractHeader("X-API-Key")
//   - "bearer"            -> ExtractBearer()
//   - "cookie:session_id" -> ExtractCookie("session_id")
//   - "static:global"     -> ExtractStatic("global")
func ParseKeyExtractorConfig(config string) (KeyExtractor, error) {
	kind, arg, hasArg := strings.Cut(config, ":")

	switch kind {
	case "ip":
		return ExtractIP(), nil

	case "ip-proxy":
		return ExtractIPWithProxy(), nil

	case "header":
		if !hasArg || arg == "" {
			return nil, fmt.Errorf("%w: header extractor requires format 'header:HeaderName'", ErrInvalidConfig)
		}
		return ExtractHeader(arg), nil

	case "bearer":
		return ExtractBearer(), nil

	case "cookie":
		if !hasArg || arg == "" {
			return nil, fmt.Errorf("%w: cookie extractor requires format 'cookie:CookieName'", ErrInvalidConfig)
		}
		return ExtractCookie(arg), nil

	case "static":
		if !hasArg || arg == "" {
			return nil, fmt.Errorf("%w: static extractor requires format 'static:key'", ErrInvalidConfig)
		}
		return ExtractStatic(arg), nil

	default:
		return nil, fmt.Errorf("%w: unknown key extractor type: %s", ErrInvalidConfig, kind)
	}
}

// remoteIP strips the port from RemoteAddr, tolerating addresses that carry
// none.
func remoteIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
