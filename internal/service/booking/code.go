package booking

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// CodeGenerator は予約の確認コードを生成します
type CodeGenerator func() (string, error)

const (
	minCode = 1000
	maxCode = 9999
)

// RandomCode は 1000〜9999 の4桁の確認コードを生成します
func RandomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(maxCode-minCode+1))
	if err != nil {
		return "", fmt.Errorf("failed to generate confirmation code: %w", err)
	}
	return fmt.Sprintf("%d", n.Int64()+minCode), nil
}
