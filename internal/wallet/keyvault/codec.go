package keyvault

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"regexp"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	"gopherwallet.com/internal/wallet/domain"
)

// codec 单条链的密钥与地址规则，地址必须是私钥的确定性函数
type codec interface {
	newKey() ([]byte, error)
	derive(priv []byte) (pub string, addr string, err error)
	validAddress(addr string) bool
	normalize(addr string) string
}

var (
	evmAddressRe     = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	stellarAddressRe = regexp.MustCompile(`^G[A-Z0-9]{55}$`)
)

func codecFor(n domain.Network) (codec, bool) {
	switch {
	case n.IsEVM():
		return evmCodec{}, true
	case n == domain.NetworkStellar:
		return stellarCodec{}, true
	case n == domain.NetworkBitcoin:
		return bitcoinCodec{params: &chaincfg.MainNetParams}, true
	case n == domain.NetworkSolana:
		return solanaCodec{}, true
	}
	return nil, false
}

func randomSeed() ([]byte, error) {
	b := make([]byte, keySize)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// evm: secp256k1，地址为 EIP-55 校验大小写
type evmCodec struct{}

func (evmCodec) newKey() ([]byte, error) {
	k, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return crypto.FromECDSA(k), nil
}

func (evmCodec) derive(priv []byte) (string, string, error) {
	k, err := crypto.ToECDSA(priv)
	if err != nil {
		return "", "", err
	}
	pub := hex.EncodeToString(crypto.FromECDSAPub(&k.PublicKey))
	return pub, crypto.PubkeyToAddress(k.PublicKey).Hex(), nil
}

func (evmCodec) validAddress(addr string) bool { return evmAddressRe.MatchString(addr) }

func (evmCodec) normalize(addr string) string {
	if !evmAddressRe.MatchString(addr) {
		return addr
	}
	return common.HexToAddress(addr).Hex()
}

// stellar: ed25519 seed，地址为 StrKey 账户 ID
type stellarCodec struct{}

func (stellarCodec) newKey() ([]byte, error) { return randomSeed() }

func (stellarCodec) derive(priv []byte) (string, string, error) {
	if len(priv) != ed25519.SeedSize {
		return "", "", errKeySize
	}
	pub := ed25519.NewKeyFromSeed(priv).Public().(ed25519.PublicKey)
	addr, err := encodeStellarAccount(pub)
	if err != nil {
		return "", "", err
	}
	return hex.EncodeToString(pub), addr, nil
}

func (stellarCodec) validAddress(addr string) bool { return stellarAddressRe.MatchString(addr) }
func (stellarCodec) normalize(addr string) string  { return addr }

// bitcoin: secp256k1 压缩公钥，P2WPKH (bech32)
type bitcoinCodec struct {
	params *chaincfg.Params
}

func (bitcoinCodec) newKey() ([]byte, error) {
	k, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return k.Serialize(), nil
}

func (c bitcoinCodec) derive(priv []byte) (string, string, error) {
	var s btcec.ModNScalar
	if len(priv) != keySize {
		return "", "", errKeySize
	}
	if overflow := s.SetByteSlice(priv); overflow || s.IsZero() {
		return "", "", errKeyRange
	}
	_, pubKey := btcec.PrivKeyFromBytes(priv)
	compressed := pubKey.SerializeCompressed()
	addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(compressed), c.params)
	if err != nil {
		return "", "", err
	}
	return hex.EncodeToString(compressed), addr.EncodeAddress(), nil
}

func (c bitcoinCodec) validAddress(addr string) bool {
	a, err := btcutil.DecodeAddress(addr, c.params)
	return err == nil && a.IsForNet(c.params)
}

func (bitcoinCodec) normalize(addr string) string { return addr }

// solana: ed25519 seed，地址为 base58 公钥
type solanaCodec struct{}

func (solanaCodec) newKey() ([]byte, error) { return randomSeed() }

func (solanaCodec) derive(priv []byte) (string, string, error) {
	if len(priv) != ed25519.SeedSize {
		return "", "", errKeySize
	}
	pk := solana.PrivateKey(ed25519.NewKeyFromSeed(priv)).PublicKey()
	return hex.EncodeToString(pk[:]), pk.String(), nil
}

func (solanaCodec) validAddress(addr string) bool {
	_, err := solana.PublicKeyFromBase58(addr)
	return err == nil
}

func (solanaCodec) normalize(addr string) string { return addr }
