package domain

// Destination 转账目标：本系统内的钱包，或外部地址
// 只有 InternalWallet 才会记入贷方
type Destination interface {
	Address() string
	destination()
}

type InternalWallet struct {
	Wallet *Wallet
}

func (d InternalWallet) Address() string { return d.Wallet.Address }
func (InternalWallet) destination()      {}

type ExternalAddress struct {
	Addr string
}

func (d ExternalAddress) Address() string { return d.Addr }
func (ExternalAddress) destination()      {}
