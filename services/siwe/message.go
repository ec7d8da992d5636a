package siwe

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	eip4361 "github.com/spruceid/siwe-go"
	"github.com/tech-arch1tect/walletauth/config"
)

var ErrMalformedMessage = errors.New("malformed sign-in message")

const timestampLayout = "2006-01-02T15:04:05.000Z"

// Message is an EIP-4361 sign-in message. Parsed messages carry a checksummed
// Address and keep the library representation they were read from, which is
// what signatures are checked against.
type Message struct {
	Domain         string
	Address        string
	Statement      string
	URI            string
	Version        string
	ChainID        int64
	Nonce          string
	IssuedAt       time.Time
	ExpirationTime *time.Time
	NotBefore      *time.Time
	RequestID      string
	Resources      []string

	parsed *eip4361.Message
}

// NewMessage prepares an unsigned message for this service's domain, ready to
// be shown to a wallet.
func NewMessage(cfg config.SIWEConfig, address string, chainID int64, nonce string, issuedAt time.Time) *Message {
	return &Message{
		Domain:    cfg.Domain,
		Address:   address,
		Statement: cfg.Statement,
		URI:       cfg.URI,
		Version:   "1",
		ChainID:   chainID,
		Nonce:     nonce,
		IssuedAt:  issuedAt,
	}
}

// Render produces the exact text a wallet displays and signs.
func (m *Message) Render() (string, error) {
	options := map[string]interface{}{
		"chainId":  int(m.ChainID),
		"issuedAt": m.IssuedAt.UTC().Format(timestampLayout),
	}
	if m.Statement != "" {
		options["statement"] = m.Statement
	}
	if m.ExpirationTime != nil {
		options["expirationTime"] = m.ExpirationTime.UTC().Format(timestampLayout)
	}
	if m.NotBefore != nil {
		options["notBefore"] = m.NotBefore.UTC().Format(timestampLayout)
	}
	if m.RequestID != "" {
		options["requestId"] = m.RequestID
	}
	if len(m.Resources) > 0 {
		resources := make([]url.URL, 0, len(m.Resources))
		for _, r := range m.Resources {
			u, err := url.Parse(r)
			if err != nil {
				return "", malformed("invalid resource " + r)
			}
			resources = append(resources, *u)
		}
		options["resources"] = resources
	}

	msg, err := eip4361.InitMessage(m.Domain, m.Address, m.URI, m.Nonce, options)
	if err != nil {
		return "", translate(err, ErrMalformedMessage)
	}
	return msg.String(), nil
}

// ParseMessage parses a signed message. The text must be exactly what the
// library renders for the parsed fields, so the bytes a wallet signed are the
// bytes the signature is checked against. A non-canonical address or a stray
// trailing line is ErrMalformedMessage.
func ParseMessage(raw string) (*Message, error) {
	parsed, err := eip4361.ParseMessage(raw)
	if err != nil {
		return nil, translate(err, ErrMalformedMessage)
	}
	if parsed.String() != raw {
		return nil, malformed("message is not in canonical form")
	}

	m := &Message{
		Domain:  parsed.GetDomain(),
		Address: parsed.GetAddress().Hex(),
		Version: parsed.GetVersion(),
		ChainID: int64(parsed.GetChainID()),
		Nonce:   parsed.GetNonce(),
		parsed:  parsed,
	}
	uri := parsed.GetURI()
	m.URI = uri.String()

	if m.ChainID <= 0 {
		return nil, malformed("invalid chain id")
	}
	if statement := parsed.GetStatement(); statement != nil {
		m.Statement = *statement
	}
	if requestID := parsed.GetRequestID(); requestID != nil {
		m.RequestID = *requestID
	}
	for _, r := range parsed.GetResources() {
		m.Resources = append(m.Resources, r.String())
	}

	if m.IssuedAt, err = parseTimestamp(parsed.GetIssuedAt()); err != nil {
		return nil, err
	}
	if value := parsed.GetExpirationTime(); value != nil {
		t, err := parseTimestamp(*value)
		if err != nil {
			return nil, err
		}
		m.ExpirationTime = &t
	}
	if value := parsed.GetNotBefore(); value != nil {
		t, err := parseTimestamp(*value)
		if err != nil {
			return nil, err
		}
		m.NotBefore = &t
	}

	return m, nil
}

// validAt reports library errors for Expiration Time and Not Before.
func (m *Message) validAt(now time.Time) error {
	if m.parsed == nil {
		return malformed("message was not parsed")
	}
	if _, err := m.parsed.ValidAt(now); err != nil {
		return translate(err, ErrMessageExpired)
	}
	return nil
}

// verifySignature checks an EIP-191 personal_sign signature over the parsed
// message and that it was made by the message's address.
func (m *Message) verifySignature(signature string) error {
	if m.parsed == nil {
		return malformed("message was not parsed")
	}
	normalized, err := normalizeSignature(signature)
	if err != nil {
		return err
	}
	if _, err := m.parsed.VerifyEIP191(normalized); err != nil {
		return translate(err, ErrSignatureInvalid)
	}
	return nil
}

// translate maps the library's error types onto this package's sentinels.
// InvalidMessage means different things per stage (a bad field when parsing,
// a Not Before in the future when checking validity), so it and any untyped
// error take the sentinel of the calling stage.
func translate(err error, stage error) error {
	var (
		expired   *eip4361.ExpiredMessage
		signature *eip4361.InvalidSignature
	)
	switch {
	case errors.As(err, &expired):
		return fmt.Errorf("%w: %v", ErrMessageExpired, err)
	case errors.As(err, &signature):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	default:
		return fmt.Errorf("%w: %v", stage, err)
	}
}

func parseTimestamp(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, malformed("invalid timestamp " + value)
	}
	return t, nil
}

func malformed(detail string) error {
	return fmt.Errorf("%w: %s", ErrMalformedMessage, detail)
}

// IsHexAddress reports whether s is 0x followed by 40 hex digits.
func IsHexAddress(s string) bool {
	return strings.HasPrefix(s, "0x") && common.IsHexAddress(s)
}

// NormalizeAddress lowercases an address for use as a session identity.
func NormalizeAddress(address string) string {
	return strings.ToLower(address)
}
