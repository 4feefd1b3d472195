package hash

import (
	"encoding/hex"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// CalculateDigest returns hex encoded BLAKE3 digest and size of data.
func CalculateDigest(r io.Reader) (string, int64, error) {
	hash := blake3.New()
	size, err := io.Copy(hash, r)
	if err != nil {
		return "", size, err
	}
	return hex.EncodeToString(hash.Sum(nil)), size, nil
}

// FileDigest returns hex encoded BLAKE3 digest of file.
func FileDigest(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = file.Close() }()
	digest, _, err := CalculateDigest(file)
	return digest, err
}
