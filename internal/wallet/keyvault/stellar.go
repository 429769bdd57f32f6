package keyvault

import "github.com/stellar/go/strkey"

// encodeStellarAccount ed25519 公钥 -> StrKey 账户 ID（G 开头，56 字符）
func encodeStellarAccount(pub []byte) (string, error) {
	return strkey.Encode(strkey.VersionByteAccountID, pub)
}
