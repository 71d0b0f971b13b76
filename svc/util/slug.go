package util

import (
	"crypto/rand"
	"github.com/pkg/errors"
	"math/big"
)

const base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// SlugLen is fixed: 8 random bytes always encode to at most 11 base62
// digits, padded to exactly 11. ~2^64 of keyspace keeps pages unguessable.
const SlugLen = 11

// GenSlug mints a random identifier and probes the supplied exists callback
// to guarantee uniqueness. A duplicate triggers regeneration, never an
// overwrite.
func GenSlug(exists func(string) (bool, error)) (string, error) {
	for retry := 0; retry < 5; retry++ {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			return "", errors.Wrap(err, "rand fail")
		}
		num := new(big.Int).SetBytes(buf)
		slug := toBase62(num)
		exist, err := exists(slug)
		if err != nil {
			return "", err
		}
		if !exist {
			return slug, nil
		}
	}
	return "", errors.New("slug collision after 5 retries")
}

func toBase62(num *big.Int) string {
	if num.Sign() == 0 {
		return string(base62Chars[0])
	}
	base := big.NewInt(62)
	result := make([]byte, 0, SlugLen)
	zero := big.NewInt(0)
	temp := new(big.Int).Set(num)
	for temp.Cmp(zero) > 0 {
		mod := new(big.Int)
		temp.DivMod(temp, base, mod)
		result = append(result, base62Chars[mod.Int64()])
	}
	for len(result) < SlugLen {
		result = append(result, base62Chars[0])
	}
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return string(result)
}
