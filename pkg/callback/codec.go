package callback

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/orenlab/pytmbot-sub000/pkg/errs"
)

const (
	// MaxEncodedLen is the platform limit on callback data.
	MaxEncodedLen = 64

	// TTL is how long an issued payload stays valid.
	TTL = 5 * time.Minute

	// MaxParams bounds the number of payload parameters.
	MaxParams = 5

	maxActionLen = 15
	maxKeyLen    = 10
	maxValueLen  = 20

	signatureLen = 12 // HMAC-SHA-256 truncated to 96 bits
)

// Validation failure causes. Decode wraps one of these inside a
// CALLBACK_INVALID error; nothing more specific ever reaches the user.
var (
	ErrFormat        = errors.New("malformed callback payload")
	ErrSignature     = errors.New("signature mismatch")
	ErrExpired       = errors.New("payload expired")
	ErrNonceConsumed = errors.New("nonce already consumed")
	ErrUserMismatch  = errors.New("payload bound to another user")
	ErrCharset       = errors.New("illegal characters in payload")
	ErrTooLong       = errors.New("payload exceeds size budget")
)

var (
	actionPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
	keyPattern    = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
	valuePattern  = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
)

// Payload is a decoded callback body
type Payload struct {
	Action    string
	Params    map[string]string
	UserID    uint32 // low 32 bits of the bound user id; 0 = unbound
	Nonce     uint32
	CreatedAt time.Time
}

// Codec encodes and validates signed callback payloads. The wire format
// is a compact binary body, URL-safe base64 without padding, followed by
// "." and the truncated HMAC-SHA-256 of the base64 text.
type Codec struct {
	key    [32]byte
	nonces *nonceStore
	now    func() time.Time
}

// New derives the 32-byte signing key from secret and creates an empty
// consumed-nonce set.
func New(secret []byte) *Codec {
	c := &Codec{
		key:    sha256.Sum256(secret),
		nonces: newNonceStore(defaultNonceCapacity),
		now:    time.Now,
	}
	c.nonces.now = func() time.Time { return c.now() }
	return c
}

// Encode builds the signed wire form of (action, params, userID). The
// caller id is bound by its low 32 bits; pass 0 to leave the payload
// unbound. Fails when inputs violate the character classes or the result
// would exceed the 64-byte platform limit.
func (c *Codec) Encode(action string, params map[string]string, userID int64) (string, error) {
	if err := validateFields(action, params); err != nil {
		return "", errs.New(errs.CodeCallbackInvalid, "encode callback", err, "action", action)
	}

	nonce, err := newNonce()
	if err != nil {
		return "", errs.New(errs.CodeCallbackInvalid, "encode callback", err)
	}

	body := encodeBody(action, params, uint32(userID), nonce, uint32(c.now().Unix()))
	bodyB64 := base64.RawURLEncoding.EncodeToString(body)
	encoded := bodyB64 + "." + c.sign(bodyB64)

	if len(encoded) > MaxEncodedLen {
		return "", errs.New(errs.CodeCallbackInvalid, "encode callback", ErrTooLong,
			"action", action, "size", fmt.Sprintf("%d", len(encoded)))
	}
	return encoded, nil
}

// Decode validates data end to end and consumes its nonce. Checks run in
// order: structure, signature (constant time), TTL, nonce, user binding,
// character classes. callerID is the low-32-bit-compared sender; pass 0
// to skip the binding check only for unbound payloads.
func (c *Codec) Decode(data string, callerID int64) (*Payload, error) {
	fail := func(cause error) error {
		return errs.New(errs.CodeCallbackInvalid, "decode callback", cause)
	}

	bodyB64, sigB64, ok := strings.Cut(data, ".")
	if !ok {
		return nil, fail(ErrFormat)
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil || len(sig) != signatureLen {
		return nil, fail(ErrFormat)
	}
	body, err := base64.RawURLEncoding.DecodeString(bodyB64)
	if err != nil {
		return nil, fail(ErrFormat)
	}
	p, err := parseBody(body)
	if err != nil {
		return nil, fail(err)
	}

	expected, _ := base64.RawURLEncoding.DecodeString(c.sign(bodyB64))
	if !hmac.Equal(sig, expected) {
		return nil, fail(ErrSignature)
	}

	now := c.now()
	if now.After(p.CreatedAt.Add(TTL)) {
		return nil, fail(ErrExpired)
	}

	if !c.nonces.consume(p.Nonce, p.CreatedAt.Add(TTL)) {
		return nil, fail(ErrNonceConsumed)
	}

	if p.UserID != 0 && p.UserID != uint32(callerID) {
		return nil, fail(ErrUserMismatch)
	}

	if err := validateFields(p.Action, p.Params); err != nil {
		return nil, fail(err)
	}
	return p, nil
}

// PeekAction parses only the action name for handler routing. No
// signature, TTL, or nonce checks are made and nothing is consumed; the
// selected handler must still Decode before acting.
func (c *Codec) PeekAction(data string) (string, bool) {
	bodyB64, _, ok := strings.Cut(data, ".")
	if !ok {
		return "", false
	}
	body, err := base64.RawURLEncoding.DecodeString(bodyB64)
	if err != nil {
		return "", false
	}
	p, err := parseBody(body)
	if err != nil {
		return "", false
	}
	return p.Action, true
}

// SeenNonces reports the size of the consumed-nonce set.
func (c *Codec) SeenNonces() int {
	return c.nonces.len()
}

func (c *Codec) sign(bodyB64 string) string {
	mac := hmac.New(sha256.New, c.key[:])
	mac.Write([]byte(bodyB64))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)[:signatureLen])
}

// encodeBody lays out the unsigned wire body:
// [action_len u8][action][ts u32 BE][user_id u32 BE][nonce u32 BE]
// [param_count u8]{[key_len u8][key][val_len u8][val]}...
func encodeBody(action string, params map[string]string, userID, nonce, ts uint32) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(len(action)))
	buf.WriteString(action)

	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], ts)
	buf.Write(u32[:])
	binary.BigEndian.PutUint32(u32[:], userID)
	buf.Write(u32[:])
	binary.BigEndian.PutUint32(u32[:], nonce)
	buf.Write(u32[:])

	buf.WriteByte(byte(len(params)))
	for _, k := range sortedKeys(params) {
		buf.WriteByte(byte(len(k)))
		buf.WriteString(k)
		v := params[k]
		buf.WriteByte(byte(len(v)))
		buf.WriteString(v)
	}
	return buf.Bytes()
}

func parseBody(body []byte) (*Payload, error) {
	r := &reader{buf: body}

	actionLen, err := r.u8()
	if err != nil {
		return nil, ErrFormat
	}
	action, err := r.str(int(actionLen))
	if err != nil {
		return nil, ErrFormat
	}
	ts, err := r.u32()
	if err != nil {
		return nil, ErrFormat
	}
	userID, err := r.u32()
	if err != nil {
		return nil, ErrFormat
	}
	nonce, err := r.u32()
	if err != nil {
		return nil, ErrFormat
	}
	count, err := r.u8()
	if err != nil || int(count) > MaxParams {
		return nil, ErrFormat
	}

	var params map[string]string
	if count > 0 {
		params = make(map[string]string, count)
		for i := 0; i < int(count); i++ {
			klen, err := r.u8()
			if err != nil {
				return nil, ErrFormat
			}
			k, err := r.str(int(klen))
			if err != nil {
				return nil, ErrFormat
			}
			vlen, err := r.u8()
			if err != nil {
				return nil, ErrFormat
			}
			v, err := r.str(int(vlen))
			if err != nil {
				return nil, ErrFormat
			}
			params[k] = v
		}
	}
	if !r.done() {
		return nil, ErrFormat
	}

	return &Payload{
		Action:    action,
		Params:    params,
		UserID:    userID,
		Nonce:     nonce,
		CreatedAt: time.Unix(int64(ts), 0),
	}, nil
}

func validateFields(action string, params map[string]string) error {
	if len(action) == 0 || len(action) > maxActionLen || !actionPattern.MatchString(action) {
		return ErrCharset
	}
	if len(params) > MaxParams {
		return ErrCharset
	}
	for k, v := range params {
		if len(k) == 0 || len(k) > maxKeyLen || !keyPattern.MatchString(k) {
			return ErrCharset
		}
		if len(v) == 0 || len(v) > maxValueLen || !valuePattern.MatchString(v) {
			return ErrCharset
		}
	}
	return nil
}

func newNonce() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("failed to draw nonce: %w", err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}

// reader is a bounds-checked cursor over the binary body
type reader struct {
	buf []byte
	off int
}

func (r *reader) u8() (byte, error) {
	if r.off+1 > len(r.buf) {
		return 0, ErrFormat
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

func (r *reader) u32() (uint32, error) {
	if r.off+4 > len(r.buf) {
		return 0, ErrFormat
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) str(n int) (string, error) {
	if n < 0 || r.off+n > len(r.buf) {
		return "", ErrFormat
	}
	s := string(r.buf[r.off : r.off+n])
	r.off += n
	return s, nil
}

func (r *reader) done() bool { return r.off == len(r.buf) }
