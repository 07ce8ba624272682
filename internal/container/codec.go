// Package container implements the encrypted file container format: a
// random 16-byte IV followed by AES-256-CBC ciphertext with PKCS#7 padding.
//
// Containers are produced and consumed as streams in fixed-size chunks, so
// arbitrarily large files can be processed with constant memory.
package container

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/securedrive/internal/common"
)

const (
	// Suffix marks container files produced by Encrypt.
	Suffix = ".encrypted"

	// DefaultChunkSize is the read granularity for streaming operations.
	DefaultChunkSize = 8 * 1024
)

// Codec encrypts and decrypts container streams. The zero value is not
// usable; construct with New.
type Codec struct {
	chunkSize int

	// entropy is the IV source. Tests substitute a fixed reader to obtain
	// reproducible containers.
	entropy io.Reader
}

// New returns a Codec with the default chunk size and crypto/rand entropy.
func New() *Codec {
	return &Codec{chunkSize: DefaultChunkSize, entropy: rand.Reader}
}

// NewWithChunkSize returns a Codec that streams in chunks of n bytes.
// Values smaller than one cipher block fall back to the default.
func NewWithChunkSize(n int) *Codec {
	if n < aes.BlockSize {
		n = DefaultChunkSize
	}
	return &Codec{chunkSize: n, entropy: rand.Reader}
}

// Encrypt reads plaintext from src and writes a complete container to dst:
// a fresh random IV, then CBC ciphertext ending in a PKCS#7 padding block.
// An empty src yields a valid 32-byte container (IV plus one padding block).
//
// It returns the number of plaintext bytes consumed, for progress accounting
// at call sites; the container's exact size is EncryptedSize(consumed). dst
// may hold a partial container after an error; callers that need
// all-or-nothing output should write through filex.WriteAtomic.
func (c *Codec) Encrypt(dst io.Writer, src io.Reader, key []byte) (consumed int64, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return 0, fmt.Errorf("init cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(c.entropy, iv); err != nil {
		return 0, fmt.Errorf("generate iv: %w", err)
	}
	if _, err := dst.Write(iv); err != nil {
		return 0, fmt.Errorf("write iv: %w", err)
	}

	mode := cipher.NewCBCEncrypter(block, iv)

	buf := make([]byte, c.chunkSize)
	out := make([]byte, c.chunkSize+aes.BlockSize)
	blockBuf := make([]byte, 0, c.chunkSize+aes.BlockSize)

	for {
		rn, rerr := src.Read(buf)
		if rn > 0 {
			consumed += int64(rn)
			blockBuf = append(blockBuf, buf[:rn]...)
		}
		if rerr != nil && rerr != io.EOF {
			return consumed, fmt.Errorf("read plaintext: %w", rerr)
		}
		eof := rerr == io.EOF

		// Encrypt complete blocks; the sub-block tail stays buffered until
		// more input arrives or padding is applied.
		if nb := len(blockBuf) - len(blockBuf)%aes.BlockSize; nb > 0 {
			mode.CryptBlocks(out[:nb], blockBuf[:nb])
			if _, werr := dst.Write(out[:nb]); werr != nil {
				return consumed, fmt.Errorf("write ciphertext: %w", werr)
			}
			rest := copy(blockBuf, blockBuf[nb:])
			blockBuf = blockBuf[:rest]
		}

		if !eof {
			continue
		}

		// Pad the tail. A block-aligned plaintext gets a full padding block,
		// so every container ends in exactly one padded block.
		padded := pkcs7Pad(blockBuf, aes.BlockSize)
		mode.CryptBlocks(out[:len(padded)], padded)
		if _, werr := dst.Write(out[:len(padded)]); werr != nil {
			return consumed, fmt.Errorf("write final block: %w", werr)
		}
		return consumed, nil
	}
}

// Decrypt reads a container from src and writes the recovered plaintext to
// dst, returning the number of plaintext bytes written.
//
// Structural problems (missing or short IV, ciphertext not a whole number
// of blocks, no padding block) surface as common.ErrMalformedContainer.
// A failed padding check surfaces as common.ErrPaddingOrKey; a wrong key
// and corrupted ciphertext are indistinguishable there. dst may have
// received earlier plaintext blocks by the time either error is returned.
func (c *Codec) Decrypt(dst io.Writer, src io.Reader, key []byte) (written int64, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return 0, fmt.Errorf("init cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(src, iv); err != nil {
		return 0, fmt.Errorf("%w: short iv: %v", common.ErrMalformedContainer, err)
	}
	mode := cipher.NewCBCDecrypter(block, iv)

	buf := make([]byte, c.chunkSize)
	out := make([]byte, c.chunkSize+2*aes.BlockSize)
	blockBuf := make([]byte, 0, c.chunkSize+2*aes.BlockSize)

	for {
		rn, rerr := src.Read(buf)
		if rn > 0 {
			blockBuf = append(blockBuf, buf[:rn]...)
		}
		if rerr != nil && rerr != io.EOF {
			return written, fmt.Errorf("read ciphertext: %w", rerr)
		}
		eof := rerr == io.EOF

		if eof && len(blockBuf)%aes.BlockSize != 0 {
			return written, fmt.Errorf("%w: ciphertext is not block-aligned", common.ErrMalformedContainer)
		}

		// Decrypt complete blocks, always holding the last one back: until
		// EOF it may turn out to be the padding block.
		if nb := len(blockBuf) - len(blockBuf)%aes.BlockSize - aes.BlockSize; nb > 0 {
			mode.CryptBlocks(out[:nb], blockBuf[:nb])
			wn, werr := dst.Write(out[:nb])
			written += int64(wn)
			if werr != nil {
				return written, fmt.Errorf("write plaintext: %w", werr)
			}
			rest := copy(blockBuf, blockBuf[nb:])
			blockBuf = blockBuf[:rest]
		}

		if !eof {
			continue
		}

		if len(blockBuf) == 0 {
			return written, fmt.Errorf("%w: missing padding block", common.ErrMalformedContainer)
		}

		mode.CryptBlocks(blockBuf, blockBuf)
		unpadded, uerr := pkcs7Unpad(blockBuf, aes.BlockSize)
		if uerr != nil {
			return written, common.ErrPaddingOrKey
		}
		wn, werr := dst.Write(unpadded)
		written += int64(wn)
		if werr != nil {
			return written, fmt.Errorf("write plaintext: %w", werr)
		}
		return written, nil
	}
}

// EncryptedSize returns the exact container size for a plaintext of n bytes:
// the IV plus the plaintext rounded up to the next whole block boundary.
func EncryptedSize(n int64) int64 {
	return n + aes.BlockSize + (aes.BlockSize - n%aes.BlockSize)
}

// IsContainer reports whether path looks like a container file: a regular
// file carrying the container suffix and large enough to hold an IV. It is
// a cheap predicate, not a guarantee that decryption will succeed.
func IsContainer(path string) bool {
	if !strings.HasSuffix(path, Suffix) {
		return false
	}
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	return fi.Mode().IsRegular() && fi.Size() >= aes.BlockSize
}
