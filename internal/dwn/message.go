package dwn

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Interface and method names carried in every descriptor.
const (
	InterfaceRecords = "Records"

	MethodQuery  = "Query"
	MethodWrite  = "Write"
	MethodRead   = "Read"
	MethodDelete = "Delete"
)

// TimestampFormat is the microsecond-precision UTC layout used for
// messageTimestamp and dateCreated.
const TimestampFormat = "2006-01-02T15:04:05.000000Z"

// DateSort orders query results.
type DateSort string

const (
	CreatedAscending  DateSort = "createdAscending"
	CreatedDescending DateSort = "createdDescending"
)

// Filter narrows a query or read.
type Filter struct {
	Schema     string `json:"schema,omitempty"`
	RecordID   string `json:"recordId,omitempty"`
	DataFormat string `json:"dataFormat,omitempty"`
}

// Descriptor is the signed part of a message.
type Descriptor struct {
	Interface        string   `json:"interface"`
	Method           string   `json:"method"`
	MessageTimestamp string   `json:"messageTimestamp"`
	Schema           string   `json:"schema,omitempty"`
	DataFormat       string   `json:"dataFormat,omitempty"`
	DataCID          string   `json:"dataCid,omitempty"`
	DataSize         int      `json:"dataSize,omitempty"`
	DateCreated      string   `json:"dateCreated,omitempty"`
	RecordID         string   `json:"recordId,omitempty"`
	Filter           *Filter  `json:"filter,omitempty"`
	DateSort         DateSort `json:"dateSort,omitempty"`
}

// Authorization carries the compact JWS signed by the author.
type Authorization struct {
	Signature string `json:"signature"`
}

// Message is a single DWN message as sent on the wire and as returned in
// query and read replies.
type Message struct {
	RecordID      string         `json:"recordId,omitempty"`
	Descriptor    Descriptor     `json:"descriptor"`
	Authorization *Authorization `json:"authorization,omitempty"`
	EncodedData   string         `json:"encodedData,omitempty"`
}

// Signer authors messages. identity.Identity satisfies it.
type Signer interface {
	DID() string
	SigningKey() ed25519.PrivateKey
}

// Claims is the JWS payload of an authorization.
type Claims struct {
	DescriptorCID string `json:"descriptorCid"`
	RecordID      string `json:"recordId,omitempty"`
	jwt.RegisteredClaims
}

// KeyID returns the verification method id used in the JWS header.
func KeyID(did string) string { return did + "#0" }

// sign fills in msg.Authorization for the given descriptor.
func sign(signer Signer, msg *Message) error {
	descriptorCID, err := ComputeCID(msg.Descriptor)
	if err != nil {
		return fmt.Errorf("descriptor cid: %w", err)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, Claims{
		DescriptorCID: descriptorCID,
		RecordID:      msg.RecordID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: signer.DID(),
		},
	})
	token.Header["kid"] = KeyID(signer.DID())
	signature, err := token.SignedString(signer.SigningKey())
	if err != nil {
		return fmt.Errorf("sign message: %w", err)
	}
	msg.Authorization = &Authorization{Signature: signature}
	return nil
}

// ErrBadSignature is returned by Verify when a message's authorization
// does not match its descriptor.
var ErrBadSignature = errors.New("dwn: bad message signature")

// Verify checks msg's authorization against the author's public key and
// returns the signed claims. resolve maps a DID to its Ed25519 key.
func Verify(msg *Message, resolve func(did string) (ed25519.PublicKey, error)) (*Claims, error) {
	if msg.Authorization == nil || msg.Authorization.Signature == "" {
		return nil, fmt.Errorf("%w: missing authorization", ErrBadSignature)
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(msg.Authorization.Signature, claims, func(token *jwt.Token) (any, error) {
		issuer, err := token.Claims.GetIssuer()
		if err != nil {
			return nil, err
		}
		return resolve(issuer)
	}, jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	descriptorCID, err := ComputeCID(msg.Descriptor)
	if err != nil {
		return nil, err
	}
	if claims.DescriptorCID != descriptorCID {
		return nil, fmt.Errorf("%w: descriptor cid mismatch", ErrBadSignature)
	}
	if claims.RecordID != msg.RecordID {
		return nil, fmt.Errorf("%w: record id mismatch", ErrBadSignature)
	}
	return claims, nil
}

// EncodeData encodes a payload for the encodedData field.
func EncodeData(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeData reverses EncodeData.
func DecodeData(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// ParseTimestamp parses a messageTimestamp or dateCreated value.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampFormat, s)
}
