package masterkey

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/dd0wney/cluso-vaultcrypt/pkg/secret"
)

const (
	PayloadFileFormat = "AES-256-GCM-32k"
	PayloadNameFormat = "AES-SIV-512-B64URL"
	PayloadKDF        = "HKDF-SHA512"
)

// revolvingPayload is the decrypted JSON form of a RevolvingMasterkey.
type revolvingPayload struct {
	FileFormat  string            `json:"fileFormat"`
	NameFormat  string            `json:"nameFormat"`
	Seeds       map[string]string `json:"seeds"`
	InitialSeed string            `json:"initialSeed"`
	LatestSeed  string            `json:"latestSeed"`
	KDF         string            `json:"kdf"`
	KDFSalt     string            `json:"kdfSalt"`
}

// EncodeSeedID renders a revision as unpadded base64url of its 4 big-endian bytes.
func EncodeSeedID(revision int32) string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(revision))
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// DecodeSeedID is the inverse of EncodeSeedID.
func DecodeSeedID(id string) (int32, error) {
	b, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil || len(b) != 4 {
		return 0, fmt.Errorf("%w: bad seed id %q", ErrInvalidPayload, id)
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

// ParseRevolvingPayload decodes the JSON payload of a revolving masterkey.
func ParseRevolvingPayload(data []byte) (*RevolvingMasterkey, error) {
	var p revolvingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p.FileFormat != PayloadFileFormat {
		return nil, fmt.Errorf("%w: unsupported file format %q", ErrInvalidPayload, p.FileFormat)
	}
	if p.KDF != PayloadKDF {
		return nil, fmt.Errorf("%w: unsupported kdf %q", ErrInvalidPayload, p.KDF)
	}

	first, err := DecodeSeedID(p.InitialSeed)
	if err != nil {
		return nil, err
	}
	current, err := DecodeSeedID(p.LatestSeed)
	if err != nil {
		return nil, err
	}
	salt, err := base64.StdEncoding.DecodeString(p.KDFSalt)
	if err != nil {
		return nil, fmt.Errorf("%w: bad kdf salt", ErrInvalidPayload)
	}
	defer secret.Wipe(salt)

	seeds := make(map[int32][]byte, len(p.Seeds))
	defer func() {
		for _, s := range seeds {
			secret.Wipe(s)
		}
	}()
	for id, encoded := range p.Seeds {
		rev, err := DecodeSeedID(id)
		if err != nil {
			return nil, err
		}
		seed, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("%w: bad seed %q", ErrInvalidPayload, id)
		}
		seeds[rev] = seed
	}
	return NewRevolving(seeds, salt, first, current)
}

// MarshalPayload encodes the masterkey as its JSON payload. The result holds
// key material and should be wiped by the caller after use.
func (m *RevolvingMasterkey) MarshalPayload() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.destroyed {
		return nil, secret.ErrDestroyed
	}

	p := revolvingPayload{
		FileFormat:  PayloadFileFormat,
		NameFormat:  PayloadNameFormat,
		Seeds:       make(map[string]string, len(m.seeds)),
		InitialSeed: EncodeSeedID(m.first),
		LatestSeed:  EncodeSeedID(m.current),
		KDF:         PayloadKDF,
		KDFSalt:     base64.StdEncoding.EncodeToString(m.kdfSalt),
	}
	for rev, seed := range m.seeds {
		p.Seeds[EncodeSeedID(rev)] = base64.StdEncoding.EncodeToString(seed)
	}
	return json.Marshal(p)
}
