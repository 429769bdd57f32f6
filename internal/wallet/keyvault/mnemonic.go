package keyvault

import (
	"encoding/hex"
	"strings"

	"github.com/tyler-smith/go-bip39"
	"gopherwallet.com/pkg/xerr"
)

// KeyToMnemonic 32 字节私钥作为 BIP-39 熵，得到 24 个助记词
func (v *Vault) KeyToMnemonic(privateKey string) (string, error) {
	if !v.ValidatePrivateKey(privateKey) {
		return "", xerr.New(xerr.InvalidKey, "private key must be 64 hex characters")
	}
	entropy, _ := hex.DecodeString(privateKey)
	phrase, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", xerr.Wrap(err, xerr.Internal, "encode mnemonic")
	}
	return phrase, nil
}

// MnemonicToKey 校验词表与校验和，只接受 24 词
func (v *Vault) MnemonicToKey(phrase string) (string, error) {
	phrase = strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
	entropy, err := bip39.EntropyFromMnemonic(phrase)
	if err != nil {
		return "", xerr.Wrap(err, xerr.InvalidKey, "invalid mnemonic")
	}
	if len(entropy) != keySize {
		return "", xerr.New(xerr.InvalidKey, "mnemonic must have 24 words")
	}
	return hex.EncodeToString(entropy), nil
}
