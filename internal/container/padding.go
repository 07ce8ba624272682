package container

import (
	"bytes"
	"errors"
	"fmt"
)

var errInvalidPadding = errors.New("invalid padding")

// pkcs7Pad appends PKCS#7 padding so len(result) is a multiple of blockSize.
// Block-aligned input gains a full extra block; the result is never empty.
func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

// pkcs7Unpad strips PKCS#7 padding. The padding byte must be in 1..blockSize
// and every padding byte must match it.
func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	length := len(data)
	if length == 0 || length%blockSize != 0 {
		return nil, fmt.Errorf("%w: bad length %d", errInvalidPadding, length)
	}

	padding := int(data[length-1])
	if padding == 0 || padding > blockSize {
		return nil, fmt.Errorf("%w: padding byte %#02x", errInvalidPadding, data[length-1])
	}

	for i := length - padding; i < length; i++ {
		if data[i] != byte(padding) {
			return nil, errInvalidPadding
		}
	}

	return data[:length-padding], nil
}
