package keyvault

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"gopherwallet.com/internal/wallet/domain"
	"gopherwallet.com/pkg/xerr"
)

const keySize = 32

var (
	privateKeyRe = regexp.MustCompile(`^[a-fA-F0-9]{64}$`)

	errKeySize  = errors.New("keyvault: private key must be 32 bytes")
	errKeyRange = errors.New("keyvault: private key out of curve range")
)

// KeyPair PrivateKey 为 64 位 hex，只在创建时返回一次
type KeyPair struct {
	PrivateKey string
	PublicKey  string
	Address    string
}

// Vault 无 I/O：密钥生成、地址派生与校验、私钥加解密、ID 与交易哈希
type Vault struct {
	kdf     scryptParams
	hashSeq atomic.Uint64
	// 每个进程一份随机盐，重启后计数器归零也不会撞哈希
	hashSalt []byte
}

type Option func(*Vault)

// WithScrypt 调整 KDF 成本，测试里用小参数
func WithScrypt(n, r, p int) Option {
	return func(v *Vault) {
		v.kdf = scryptParams{N: n, R: r, P: p}
	}
}

func New(opts ...Option) *Vault {
	v := &Vault{kdf: defaultScrypt}
	for _, opt := range opts {
		opt(v)
	}
	v.hashSalt = make([]byte, 16)
	if _, err := rand.Read(v.hashSalt); err != nil {
		panic("keyvault: read random salt: " + err.Error())
	}
	return v
}

// GenerateKeyPair 新私钥 + 确定性派生的公钥与地址
func (v *Vault) GenerateKeyPair(network domain.Network) (*KeyPair, error) {
	c, ok := codecFor(network)
	if !ok {
		return nil, xerr.Newf(xerr.InvalidArgument, "unsupported network %q", network)
	}
	for {
		priv, err := c.newKey()
		if err != nil {
			return nil, xerr.Wrap(err, xerr.Internal, "generate key")
		}
		pub, addr, err := c.derive(priv)
		if errors.Is(err, errKeyRange) {
			// 随机值落在曲线阶之外，概率可忽略，重来
			continue
		}
		if err != nil {
			return nil, xerr.Wrap(err, xerr.Internal, "derive address")
		}
		return &KeyPair{PrivateKey: hex.EncodeToString(priv), PublicKey: pub, Address: addr}, nil
	}
}

// DeriveAddress 同一私钥永远得到同一地址
func (v *Vault) DeriveAddress(privateKey string, network domain.Network) (pub string, addr string, err error) {
	if !v.ValidatePrivateKey(privateKey) {
		return "", "", xerr.New(xerr.InvalidKey, "private key must be 64 hex characters")
	}
	c, ok := codecFor(network)
	if !ok {
		return "", "", xerr.Newf(xerr.InvalidArgument, "unsupported network %q", network)
	}
	raw, _ := hex.DecodeString(privateKey)
	pub, addr, err = c.derive(raw)
	if err != nil {
		return "", "", xerr.Wrap(err, xerr.InvalidKey, "private key is not valid for "+network.String())
	}
	return pub, addr, nil
}

// ValidateAddress 未知链只做长度兜底 (20..100)
func (v *Vault) ValidateAddress(address string, network domain.Network) bool {
	if c, ok := codecFor(network); ok {
		return c.validAddress(address)
	}
	return len(address) >= 20 && len(address) <= 100
}

// NormalizeAddress 用于按地址查库，EVM 统一成校验大小写
func (v *Vault) NormalizeAddress(address string, network domain.Network) string {
	address = strings.TrimSpace(address)
	if c, ok := codecFor(network); ok {
		return c.normalize(address)
	}
	return address
}

func (v *Vault) ValidatePrivateKey(key string) bool {
	return privateKeyRe.MatchString(key)
}

func (v *Vault) GenerateWalletID() string {
	return uuid.NewString()
}

// GenerateTransactionHash hash(seed ‖ 进程盐 ‖ 单调计数)
// EVM 链用 0x + keccak256，其它链用双 sha256 (比特币风格)
func (v *Vault) GenerateTransactionHash(network domain.Network, seed string) string {
	seq := binary.BigEndian.AppendUint64(nil, v.hashSeq.Add(1))
	if network.IsEVM() {
		return "0x" + hex.EncodeToString(crypto.Keccak256([]byte(seed), v.hashSalt, seq))
	}
	buf := make([]byte, 0, len(seed)+len(v.hashSalt)+len(seq))
	buf = append(buf, seed...)
	buf = append(buf, v.hashSalt...)
	buf = append(buf, seq...)
	return chainhash.DoubleHashH(buf).String()
}
