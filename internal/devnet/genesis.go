package devnet

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"gopkg.in/yaml.v3"
)

// 支持的合约类型。
const (
	KindERC20   = "erc20"
	KindWETH    = "weth"
	KindERC777  = "erc777"
	KindERC721  = "erc721"
	KindERC1155 = "erc1155"

	KindWrapAdapter   = "wrap"
	KindNFTController = "nft_controller"
	KindFixedRatePool = "fixed_rate_pool"
)

// Genesis 描述开发网的初始状态。
type Genesis struct {
	Router   RouterSpec    `yaml:"router"`
	Accounts []AccountSpec `yaml:"accounts"`
	Tokens   []TokenSpec   `yaml:"tokens"`
	Adapters []AdapterSpec `yaml:"adapters"`
}

// RouterSpec 描述路由器部署位置。
type RouterSpec struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

// AccountSpec 描述一个外部账户及其原生币余额。
type AccountSpec struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	Balance string `yaml:"balance"`
}

// MintSpec 描述创世时的代币分配。
type MintSpec struct {
	To     string `yaml:"to"`
	Amount string `yaml:"amount"`
	ID     string `yaml:"id"`
}

// TokenSpec 描述一个代币合约。
type TokenSpec struct {
	Name    string     `yaml:"name"`
	Kind    string     `yaml:"kind"`
	Address string     `yaml:"address"`
	Minter  string     `yaml:"minter"`
	Mints   []MintSpec `yaml:"mints"`
}

// AdapterSpec 描述一个动作目标合约。
type AdapterSpec struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	Address  string `yaml:"address"`
	Token    string `yaml:"token"`
	TokenIn  string `yaml:"token_in"`
	TokenOut string `yaml:"token_out"`
	RateNum  uint64 `yaml:"rate_num"`
	RateDen  uint64 `yaml:"rate_den"`
}

// LoadGenesis 从 YAML 文件读取创世配置。
func LoadGenesis(path string) (Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, fmt.Errorf("读取创世文件失败: %w", err)
	}
	return ParseGenesis(data)
}

// ParseGenesis 解析 YAML 格式的创世配置。
func ParseGenesis(data []byte) (Genesis, error) {
	var g Genesis
	if err := yaml.Unmarshal(data, &g); err != nil {
		return Genesis{}, fmt.Errorf("解析创世文件失败: %w", err)
	}
	if err := g.Validate(); err != nil {
		return Genesis{}, err
	}
	return g, nil
}

// Validate 检查名称唯一且类型受支持。
func (g Genesis) Validate() error {
	seen := map[string]struct{}{}
	add := func(name string) error {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("创世配置中存在未命名的条目")
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("创世配置中名称重复: %s", name)
		}
		seen[name] = struct{}{}
		return nil
	}
	if g.Router.Name != "" {
		if err := add(g.Router.Name); err != nil {
			return err
		}
	}
	for _, acct := range g.Accounts {
		if err := add(acct.Name); err != nil {
			return err
		}
	}
	for _, tok := range g.Tokens {
		if err := add(tok.Name); err != nil {
			return err
		}
		switch tok.Kind {
		case KindERC20, KindWETH, KindERC777, KindERC721, KindERC1155:
		default:
			return fmt.Errorf("代币 %s 的类型不受支持: %s", tok.Name, tok.Kind)
		}
	}
	for _, ad := range g.Adapters {
		if err := add(ad.Name); err != nil {
			return err
		}
		switch ad.Kind {
		case KindWrapAdapter, KindNFTController, KindFixedRatePool:
		default:
			return fmt.Errorf("适配器 %s 的类型不受支持: %s", ad.Name, ad.Kind)
		}
	}
	return nil
}

// AddressOf 为名称派生一个确定性的地址。
func AddressOf(name string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("openutr:" + name))[12:])
}

func parseAmount(value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(value, 0)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("无效的数量: %s", value)
	}
	return v, nil
}

// DefaultGenesis 返回内置的开发网：两个账户、WETH、一个 ERC20、一个道具集合、
// 一个 ERC1155、一个 ERC777，以及包装、发放与兑换三个适配器。
func DefaultGenesis() Genesis {
	ether := "1000000000000000000000"
	return Genesis{
		Router: RouterSpec{Name: "router"},
		Accounts: []AccountSpec{
			{Name: "owner", Balance: ether},
			{Name: "other", Balance: ether},
		},
		Tokens: []TokenSpec{
			{Name: "weth", Kind: KindWETH},
			{Name: "usd", Kind: KindERC20, Minter: "owner", Mints: []MintSpec{
				{To: "owner", Amount: "1000000"},
			}},
			{Name: "gem", Kind: KindERC20, Minter: "owner", Mints: []MintSpec{
				{To: "pool", Amount: "1000000"},
			}},
			{Name: "rich", Kind: KindERC777, Minter: "owner", Mints: []MintSpec{
				{To: "owner", Amount: "1000"},
			}},
			{Name: "gameItem", Kind: KindERC721, Minter: "gameController"},
			{Name: "multi", Kind: KindERC1155, Minter: "owner", Mints: []MintSpec{
				{To: "owner", ID: "1", Amount: "100"},
			}},
		},
		Adapters: []AdapterSpec{
			{Name: "wethAdapter", Kind: KindWrapAdapter, Token: "weth"},
			{Name: "gameController", Kind: KindNFTController, Token: "gameItem"},
			{Name: "pool", Kind: KindFixedRatePool, TokenIn: "usd", TokenOut: "gem", RateNum: 2, RateDen: 1},
		},
	}
}

// Resolve 将名称或十六进制地址解析为地址，名称按创世配置中的显式地址或派生地址解析。
func (g Genesis) Resolve(nameOrAddress string) (common.Address, error) {
	if nameOrAddress == "" {
		return common.Address{}, nil
	}
	explicit := func(name, addr string) (common.Address, bool) {
		if name != nameOrAddress {
			return common.Address{}, false
		}
		if addr != "" && common.IsHexAddress(addr) {
			return common.HexToAddress(addr), true
		}
		return AddressOf(name), true
	}
	routerName := g.Router.Name
	if routerName == "" {
		routerName = "router"
	}
	if addr, ok := explicit(routerName, g.Router.Address); ok {
		return addr, nil
	}
	for _, acct := range g.Accounts {
		if addr, ok := explicit(acct.Name, acct.Address); ok {
			return addr, nil
		}
	}
	for _, tok := range g.Tokens {
		if addr, ok := explicit(tok.Name, tok.Address); ok {
			return addr, nil
		}
	}
	for _, ad := range g.Adapters {
		if addr, ok := explicit(ad.Name, ad.Address); ok {
			return addr, nil
		}
	}
	if common.IsHexAddress(nameOrAddress) {
		return common.HexToAddress(nameOrAddress), nil
	}
	return common.Address{}, fmt.Errorf("%w: %s", ErrUnknownName, nameOrAddress)
}
