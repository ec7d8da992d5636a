package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/mileusna/useragent"
)

// DeviceIDLength is the number of hex characters kept from the digest.
const DeviceIDLength = 32

const unknownIP = "unknown"

// Attributes is the canonical set of request attributes a device id is
// derived from. All of them are client supplied, so a device id is an anomaly
// signal and never an authentication factor.
type Attributes struct {
	UserAgent               string
	AcceptLanguage          string
	AcceptEncoding          string
	Accept                  string
	Connection              string
	CacheControl            string
	DNT                     string
	UpgradeInsecureRequests string
	ClientIP                string
}

func FromRequest(r *http.Request) Attributes {
	h := r.Header
	return Attributes{
		UserAgent:               h.Get("User-Agent"),
		AcceptLanguage:          h.Get("Accept-Language"),
		AcceptEncoding:          h.Get("Accept-Encoding"),
		Accept:                  h.Get("Accept"),
		Connection:              h.Get("Connection"),
		CacheControl:            h.Get("Cache-Control"),
		DNT:                     h.Get("DNT"),
		UpgradeInsecureRequests: h.Get("Upgrade-Insecure-Requests"),
		ClientIP:                ClientIP(h),
	}
}

// DeviceID hashes the attributes in a fixed order. Identical attributes always
// yield the identical id.
func (a Attributes) DeviceID() string {
	canonical := strings.Join([]string{
		a.UserAgent,
		a.AcceptLanguage,
		a.AcceptEncoding,
		a.Accept,
		a.Connection,
		a.CacheControl,
		a.DNT,
		a.UpgradeInsecureRequests,
		a.ClientIP,
	}, "|")

	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])[:DeviceIDLength]
}

// ClientIP picks the first of X-Forwarded-For, X-Real-IP and CF-Connecting-IP.
func ClientIP(h http.Header) string {
	if xff := h.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	for _, name := range []string{"X-Real-IP", "CF-Connecting-IP"} {
		if ip := strings.TrimSpace(h.Get(name)); ip != "" {
			return ip
		}
	}
	return unknownIP
}

type ClientInfo struct {
	Browser     string `json:"browser"`
	OS          string `json:"os"`
	DeviceClass string `json:"device_class"`
}

// Describe turns a user agent into display strings for session listings.
func Describe(userAgent string) ClientInfo {
	if userAgent == "" {
		return ClientInfo{Browser: "Unknown Browser", OS: "Unknown OS", DeviceClass: "Unknown"}
	}

	ua := useragent.Parse(userAgent)

	info := ClientInfo{
		Browser:     "Unknown Browser",
		OS:          "Unknown OS",
		DeviceClass: "Desktop",
	}

	switch {
	case ua.Bot:
		info.DeviceClass = "Bot"
	case ua.Mobile:
		info.DeviceClass = "Mobile"
	case ua.Tablet:
		info.DeviceClass = "Tablet"
	}

	if ua.Name != "" {
		info.Browser = strings.TrimSpace(ua.Name + " " + ua.Version)
	}
	if ua.OS != "" {
		info.OS = strings.TrimSpace(ua.OS + " " + ua.OSVersion)
	}

	return info
}
