package encryption

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/dd0wney/cluso-vaultcrypt/pkg/masterkey"
)

// Cryptor bundles the header and content cryptors of one scheme.
type Cryptor struct {
	scheme  Scheme
	key     masterkey.Masterkey
	rnd     io.Reader
	header  HeaderCryptor
	content ContentCryptor
}

// New builds a Cryptor for scheme. SchemeCTRHMAC needs a
// *masterkey.PerpetualMasterkey and SchemeGCM a *masterkey.RevolvingMasterkey.
// random supplies nonces and content keys; nil means crypto/rand.Reader.
// random must be safe for concurrent use if the Cryptor is shared.
func New(scheme Scheme, key masterkey.Masterkey, random io.Reader) (*Cryptor, error) {
	if random == nil {
		random = rand.Reader
	}
	if key == nil || key.IsDestroyed() {
		return nil, fmt.Errorf("%w: masterkey missing or destroyed", ErrInvalidArgument)
	}

	c := &Cryptor{scheme: scheme, key: key, rnd: random}
	switch scheme {
	case SchemeCTRHMAC:
		mk, ok := key.(*masterkey.PerpetualMasterkey)
		if !ok {
			return nil, fmt.Errorf("%w: %s requires a perpetual masterkey, got %T", ErrInvalidArgument, scheme, key)
		}
		prims, err := newCTRMACPrimitives(mk)
		if err != nil {
			return nil, err
		}
		c.header = &ctrmacHeaderCryptor{key: mk, prims: prims, random: random}
		c.content = &ctrmacContentCryptor{key: mk, prims: prims, random: random}
	case SchemeGCM:
		mk, ok := key.(*masterkey.RevolvingMasterkey)
		if !ok {
			return nil, fmt.Errorf("%w: %s requires a revolving masterkey, got %T", ErrInvalidArgument, scheme, key)
		}
		c.header = &gcmHeaderCryptor{key: mk, random: random}
		c.content = &gcmContentCryptor{random: random}
	default:
		return nil, fmt.Errorf("%w: unknown scheme %d", ErrInvalidArgument, int(scheme))
	}
	return c, nil
}

// Scheme returns the scheme the Cryptor was built for.
func (c *Cryptor) Scheme() Scheme {
	return c.scheme
}

// Header returns the header cryptor.
func (c *Cryptor) Header() HeaderCryptor {
	return c.header
}

// Content returns the content cryptor.
func (c *Cryptor) Content() ContentCryptor {
	return c.content
}

func (c *Cryptor) random() io.Reader {
	return c.rnd
}

// Destroy wipes the masterkey the Cryptor was built with.
func (c *Cryptor) Destroy() {
	c.key.Destroy()
}

// IsDestroyed reports whether the masterkey has been wiped.
func (c *Cryptor) IsDestroyed() bool {
	return c.key.IsDestroyed()
}

// CiphertextFileSize returns the full file size, header included, for a
// cleartext of size bytes.
func (c *Cryptor) CiphertextFileSize(size int64) (int64, error) {
	n, err := c.content.CiphertextSize(size)
	if err != nil {
		return 0, err
	}
	return int64(c.header.HeaderSize()) + n, nil
}

// CleartextFileSize is the inverse of CiphertextFileSize.
func (c *Cryptor) CleartextFileSize(size int64) (int64, error) {
	hs := int64(c.header.HeaderSize())
	if size < hs {
		return 0, fmt.Errorf("%w: file of %d bytes is shorter than its %d byte header", ErrInvalidArgument, size, hs)
	}
	return c.content.CleartextSize(size - hs)
}
