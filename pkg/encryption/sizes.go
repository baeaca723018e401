package encryption

import "fmt"

// ciphertextSize maps a cleartext size to its chunked ciphertext size:
// every full chunk grows by overhead, and so does a non-empty remainder.
func ciphertextSize(cleartextSize int64, payload, overhead int) (int64, error) {
	if cleartextSize < 0 {
		return 0, fmt.Errorf("%w: negative cleartext size %d", ErrInvalidArgument, cleartextSize)
	}
	full := cleartextSize / int64(payload)
	rem := cleartextSize % int64(payload)
	size := full * int64(payload+overhead)
	if rem > 0 {
		size += rem + int64(overhead)
	}
	return size, nil
}

// cleartextSize is the inverse of ciphertextSize. A trailing partial chunk
// shorter than overhead cannot have been produced by the encryptor.
func cleartextSize(ciphertextSize int64, payload, overhead int) (int64, error) {
	if ciphertextSize < 0 {
		return 0, fmt.Errorf("%w: negative ciphertext size %d", ErrInvalidArgument, ciphertextSize)
	}
	chunk := int64(payload + overhead)
	full := ciphertextSize / chunk
	rem := ciphertextSize % chunk
	if rem > 0 && rem < int64(overhead) {
		return 0, fmt.Errorf("%w: ciphertext size %d leaves a %d byte partial chunk inside the %d byte overhead", ErrInvalidArgument, ciphertextSize, rem, overhead)
	}
	size := full * int64(payload)
	if rem > 0 {
		size += rem - int64(overhead)
	}
	return size, nil
}
