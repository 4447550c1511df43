package dwn

import (
	"crypto/sha256"
	"encoding/base32"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Multicodec and multihash codes used when building CIDv1 strings.
const (
	codecDagCBOR = 0x71
	codecRaw     = 0x55
	hashSHA256   = 0x12
	cidVersion1  = 0x01
)

// base32Lower is the RFC 4648 alphabet in lower case without padding,
// which is what the "b" multibase prefix denotes.
var base32Lower = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// encMode encodes with Core Deterministic Encoding so the same logical
// value always hashes to the same CID. Struct fields without a cbor tag
// fall back to their json tag, which keeps wire names identical.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("dwn: CBOR encoder initialization failed: " + err.Error())
	}
}

// ComputeCID returns the dag-cbor CIDv1 of v.
func ComputeCID(v any) (string, error) {
	encoded, err := encMode.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("cbor encode: %w", err)
	}
	return encodeCID(codecDagCBOR, encoded), nil
}

// DataCID returns the raw-codec CIDv1 of a record payload.
func DataCID(data []byte) string {
	return encodeCID(codecRaw, data)
}

func encodeCID(codec byte, content []byte) string {
	sum := sha256.Sum256(content)
	buf := make([]byte, 0, 4+len(sum))
	buf = append(buf, cidVersion1, codec, hashSHA256, byte(len(sum)))
	buf = append(buf, sum[:]...)
	return "b" + base32Lower.EncodeToString(buf)
}

// entryID is hashed to derive the record id of an initial write.
type entryID struct {
	DescriptorCID string `json:"descriptorCid"`
	Author        string `json:"author"`
}

// RecordID derives the id of a record from its initial write descriptor
// and the author's DID.
func RecordID(descriptorCID, author string) (string, error) {
	return ComputeCID(entryID{DescriptorCID: descriptorCID, Author: author})
}
