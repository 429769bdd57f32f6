package keyvault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"

	"golang.org/x/crypto/scrypt"
	"gopherwallet.com/pkg/xerr"
)

// 密文格式: base64(version ‖ salt ‖ nonce ‖ AES-256-GCM(key))
const (
	cipherVersion byte = 1
	saltSize           = 16
	derivedKeySize     = 32
)

type scryptParams struct {
	N, R, P int
}

var defaultScrypt = scryptParams{N: 1 << 15, R: 8, P: 1}

func (v *Vault) deriveKey(password string, salt []byte) ([]byte, error) {
	return scrypt.Key([]byte(password), salt, v.kdf.N, v.kdf.R, v.kdf.P, derivedKeySize)
}

// EncryptPrivateKey 每次随机 salt 和 nonce，同一明文两次加密结果不同
func (v *Vault) EncryptPrivateKey(privateKey, password string) (string, error) {
	if password == "" {
		return "", xerr.New(xerr.InvalidArgument, "password is required")
	}
	if !v.ValidatePrivateKey(privateKey) {
		return "", xerr.New(xerr.InvalidKey, "private key must be 64 hex characters")
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", xerr.Wrap(err, xerr.Internal, "read salt")
	}
	gcm, err := v.newGCM(password, salt)
	if err != nil {
		return "", xerr.Wrap(err, xerr.Internal, "init cipher")
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", xerr.Wrap(err, xerr.Internal, "read nonce")
	}

	var out bytes.Buffer
	out.WriteByte(cipherVersion)
	out.Write(salt)
	out.Write(nonce)
	out.Write(gcm.Seal(nil, nonce, []byte(privateKey), []byte{cipherVersion}))
	return base64.StdEncoding.EncodeToString(out.Bytes()), nil
}

// DecryptPrivateKey 任何解密失败都归为 BadPassword，绝不返回错误的明文
func (v *Vault) DecryptPrivateKey(ciphertext, password string) (string, error) {
	badPassword := xerr.New(xerr.BadPassword, "incorrect password")
	if password == "" {
		return "", badPassword
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil || len(raw) < 1+saltSize || raw[0] != cipherVersion {
		return "", badPassword
	}
	salt := raw[1 : 1+saltSize]
	gcm, err := v.newGCM(password, salt)
	if err != nil {
		return "", xerr.Wrap(err, xerr.Internal, "init cipher")
	}
	rest := raw[1+saltSize:]
	if len(rest) < gcm.NonceSize()+gcm.Overhead() {
		return "", badPassword
	}
	nonce, sealed := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, sealed, []byte{cipherVersion})
	if err != nil || !v.ValidatePrivateKey(string(plain)) {
		return "", badPassword
	}
	return string(plain), nil
}

func (v *Vault) newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key, err := v.deriveKey(password, salt)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
