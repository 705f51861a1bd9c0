package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// 加解密相关的错误定义
var (
	// ErrEmptyKey 表示未配置加密密钥
	ErrEmptyKey = errors.New("encryption key is empty")
	// ErrMalformedCiphertext 表示密文格式不正确
	ErrMalformedCiphertext = errors.New("malformed ciphertext")
	// ErrInvalidPadding 表示解密后的填充不合法
	ErrInvalidPadding = errors.New("invalid ciphertext padding")
)

// scrypt 密钥派生参数
const (
	keySalt   = "mailforge-secret"
	scryptN   = 1 << 15
	scryptR   = 8
	scryptP   = 1
	keyLength = 32 // AES-256
)

// Box 对称加密器，用于邮箱 SMTP 口令等凭证的静态加密
//
// 采用 AES-256-CBC，密钥由配置口令经 scrypt 派生。
// 密文格式为 "iv:ciphertext"，两段均为十六进制编码。
type Box struct {
	key []byte
}

// NewBox 由配置口令派生加密密钥并创建加密器
func NewBox(passphrase string) (*Box, error) {
	if passphrase == "" {
		return nil, ErrEmptyKey
	}
	key, err := scrypt.Key([]byte(passphrase), []byte(keySalt), scryptN, scryptR, scryptP, keyLength)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return &Box{key: key}, nil
}

// Encrypt 加密明文，返回 "iv:ciphertext" 格式的十六进制密文
func (b *Box) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(b.key)
	if err != nil {
		return "", err
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decrypt 解密 "iv:ciphertext" 格式的密文并返回明文
func (b *Box) Decrypt(encoded string) (string, error) {
	ivHex, dataHex, ok := strings.Cut(encoded, ":")
	if !ok {
		return "", ErrMalformedCiphertext
	}

	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return "", ErrMalformedCiphertext
	}

	ciphertext, err := hex.DecodeString(dataHex)
	if err != nil || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", ErrMalformedCiphertext
	}

	block, err := aes.NewCipher(b.key)
	if err != nil {
		return "", err
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := pkcs7Unpad(plaintext, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

// pkcs7Pad 按 PKCS#7 规则填充到块大小的整数倍。
func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padding)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padding)
	}
	return padded
}

// pkcs7Unpad 校验并去除 PKCS#7 填充。
func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrInvalidPadding
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize || padding > len(data) {
		return nil, ErrInvalidPadding
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, ErrInvalidPadding
		}
	}
	return data[:len(data)-padding], nil
}
