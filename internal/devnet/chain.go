package devnet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"OpenUTR/internal/adapters"
	"OpenUTR/internal/assets"
	"OpenUTR/internal/chain"
	"OpenUTR/internal/observability/metrics"
	"OpenUTR/internal/router"
	"OpenUTR/internal/tokens"
	"OpenUTR/pkg/logger"
)

// ErrUnknownName 表示名称不在创世配置中。
var ErrUnknownName = errors.New("unknown devnet name")

// Chain 是一条进程内开发网：一个世界状态、一个路由器以及创世时部署的代币与适配器。
// 所有交易串行执行。
type Chain struct {
	mu     sync.Mutex
	world  *chain.World
	router *router.Router
	names  map[string]common.Address
	kinds  map[common.Address]string
	log    *slog.Logger
}

// New 按创世配置构建开发网。cfg 中的地址应已通过 Genesis.Resolve 解析。
func New(g Genesis, cfg router.Config, opts ...router.Option) (*Chain, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	world, err := chain.NewWorld()
	if err != nil {
		return nil, err
	}
	c := &Chain{
		world: world,
		names: make(map[string]common.Address),
		kinds: make(map[common.Address]string),
		log:   logger.Named("devnet"),
	}
	if err := c.assignAddresses(g); err != nil {
		return nil, err
	}

	routerName := g.Router.Name
	if routerName == "" {
		routerName = "router"
	}
	c.router = router.New(c.names[routerName], cfg, opts...)
	world.Deploy(c.router.Address(), c.router)
	c.kinds[c.router.Address()] = "router"

	for _, acct := range g.Accounts {
		amount, err := parseAmount(acct.Balance)
		if err != nil {
			return nil, fmt.Errorf("账户 %s: %w", acct.Name, err)
		}
		if err := world.Fund(c.names[acct.Name], amount); err != nil {
			return nil, fmt.Errorf("账户 %s 注资失败: %w", acct.Name, err)
		}
	}
	for _, tok := range g.Tokens {
		c.deployToken(tok)
	}
	for _, ad := range g.Adapters {
		if err := c.deployAdapter(ad); err != nil {
			return nil, err
		}
	}
	for _, tok := range g.Tokens {
		if err := c.mintGenesis(tok); err != nil {
			return nil, err
		}
	}
	c.log.Info("开发网已就绪", "router", c.router.Address().Hex(), "contracts", len(c.kinds))
	return c, nil
}

func (c *Chain) assignAddresses(g Genesis) error {
	assign := func(name, explicit string) error {
		if explicit == "" {
			c.names[name] = AddressOf(name)
			return nil
		}
		if !common.IsHexAddress(explicit) {
			return fmt.Errorf("%s 的地址无效: %s", name, explicit)
		}
		c.names[name] = common.HexToAddress(explicit)
		return nil
	}
	routerName := g.Router.Name
	if routerName == "" {
		routerName = "router"
	}
	if err := assign(routerName, g.Router.Address); err != nil {
		return err
	}
	for _, acct := range g.Accounts {
		if err := assign(acct.Name, acct.Address); err != nil {
			return err
		}
	}
	for _, tok := range g.Tokens {
		if err := assign(tok.Name, tok.Address); err != nil {
			return err
		}
	}
	for _, ad := range g.Adapters {
		if err := assign(ad.Name, ad.Address); err != nil {
			return err
		}
	}
	return nil
}

func (c *Chain) deployToken(tok TokenSpec) {
	addr := c.names[tok.Name]
	minter := c.lookup(tok.Minter)
	switch tok.Kind {
	case KindERC20:
		c.world.Deploy(addr, tokens.NewERC20(minter))
	case KindWETH:
		c.world.Deploy(addr, tokens.NewWETH())
	case KindERC777:
		c.world.Deploy(addr, tokens.NewERC777(minter))
	case KindERC721:
		c.world.Deploy(addr, tokens.NewERC721(minter))
	case KindERC1155:
		c.world.Deploy(addr, tokens.NewERC1155(minter))
	}
	c.kinds[addr] = tok.Kind
}

func (c *Chain) deployAdapter(ad AdapterSpec) error {
	addr := c.names[ad.Name]
	switch ad.Kind {
	case KindWrapAdapter:
		token, ok := c.names[ad.Token]
		if !ok {
			return fmt.Errorf("适配器 %s 引用了未知代币 %s", ad.Name, ad.Token)
		}
		c.world.Deploy(addr, adapters.NewWrapAdapter(token))
	case KindNFTController:
		item, ok := c.names[ad.Token]
		if !ok {
			return fmt.Errorf("适配器 %s 引用了未知代币 %s", ad.Name, ad.Token)
		}
		c.world.Deploy(addr, adapters.NewNFTController(item))
	case KindFixedRatePool:
		in, okIn := c.names[ad.TokenIn]
		out, okOut := c.names[ad.TokenOut]
		if !okIn || !okOut {
			return fmt.Errorf("适配器 %s 引用了未知代币 %s/%s", ad.Name, ad.TokenIn, ad.TokenOut)
		}
		c.world.Deploy(addr, adapters.NewFixedRatePool(c.router.Address(), in, out, ad.RateNum, ad.RateDen))
	}
	c.kinds[addr] = ad.Kind
	return nil
}

func (c *Chain) mintGenesis(tok TokenSpec) error {
	if len(tok.Mints) == 0 {
		return nil
	}
	if tok.Kind == KindWETH || tok.Kind == KindERC721 {
		return fmt.Errorf("代币 %s 不支持创世铸造", tok.Name)
	}
	token := c.names[tok.Name]
	minter := c.lookup(tok.Minter)
	for _, m := range tok.Mints {
		to, ok := c.names[m.To]
		if !ok {
			return fmt.Errorf("代币 %s 的铸造目标未知: %s", tok.Name, m.To)
		}
		amount, err := parseAmount(m.Amount)
		if err != nil {
			return fmt.Errorf("代币 %s: %w", tok.Name, err)
		}
		var input []byte
		if tok.Kind == KindERC1155 {
			id, err := parseAmount(m.ID)
			if err != nil {
				return fmt.Errorf("代币 %s: %w", tok.Name, err)
			}
			input = chain.MustPack(assets.ERC1155, "mint", to, id, amount)
		} else {
			input = chain.MustPack(assets.ERC20, "mint", to, amount)
		}
		if _, err := c.world.Transact(context.Background(), minter, token, input, nil); err != nil {
			return fmt.Errorf("代币 %s 铸造失败: %w", tok.Name, err)
		}
	}
	return nil
}

func (c *Chain) lookup(name string) common.Address {
	if addr, ok := c.names[name]; ok {
		return addr
	}
	if common.IsHexAddress(name) {
		return common.HexToAddress(name)
	}
	return common.Address{}
}

// Resolve 将创世名称或十六进制地址解析为地址。
func (c *Chain) Resolve(nameOrAddress string) (common.Address, error) {
	if addr, ok := c.names[nameOrAddress]; ok {
		return addr, nil
	}
	if common.IsHexAddress(nameOrAddress) {
		return common.HexToAddress(nameOrAddress), nil
	}
	return common.Address{}, fmt.Errorf("%w: %s", ErrUnknownName, nameOrAddress)
}

// MustAddress 返回名称对应的地址，名称未知时 panic。仅用于测试与固定配置。
func (c *Chain) MustAddress(name string) common.Address {
	addr, ok := c.names[name]
	if !ok {
		panic(fmt.Sprintf("devnet: unknown name %q", name))
	}
	return addr
}

// Contract 描述一个已部署的合约。
type Contract struct {
	Name    string         `json:"name"`
	Kind    string         `json:"kind"`
	Address common.Address `json:"address"`
}

// Contracts 返回全部已部署合约，按名称排序。
func (c *Chain) Contracts() []Contract {
	out := make([]Contract, 0, len(c.kinds))
	for name, addr := range c.names {
		if kind, ok := c.kinds[addr]; ok {
			out = append(out, Contract{Name: name, Kind: kind, Address: addr})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Router 返回路由器地址。
func (c *Chain) Router() common.Address { return c.router.Address() }

// Exec 以 caller 身份提交一个批次，附带 value 原生币。失败时世界状态保持不变。
func (c *Chain) Exec(ctx context.Context, caller common.Address, value *big.Int, outputs []router.Output, actions []router.Action) (*router.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	var receipt *router.Receipt
	err := c.world.TransactFunc(ctx, caller, c.router.Address(), value, func(env *chain.Env) error {
		r, err := c.router.Exec(env, outputs, actions)
		receipt = r
		return err
	})
	if err != nil {
		code := router.ErrorCode(err)
		metrics.ObserveBatch(metrics.OutcomeReverted, string(code), len(actions), time.Since(start))
		c.log.Warn("批次已回滚", "caller", caller.Hex(), "code", code, "error", err)
		return nil, err
	}
	metrics.ObserveBatch(metrics.OutcomeCommitted, "", len(actions), time.Since(start))
	logger.Audit().Info("批次已提交",
		slog.String("caller", caller.Hex()),
		slog.Int("actions", len(actions)),
		slog.Int("outputs", len(outputs)),
		slog.String("refund", receipt.Refund.String()))
	return receipt, nil
}

// Transact 执行一笔普通交易。
func (c *Chain) Transact(ctx context.Context, from, to common.Address, input []byte, value *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.world.Transact(ctx, from, to, input, value)
}

// View 以只读方式执行调用，调用产生的状态变化全部丢弃。
func (c *Chain) View(ctx context.Context, from, to common.Address, input []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []byte
	err := c.world.StaticView(ctx, from, from, func(env *chain.Env) error {
		var err error
		out, err = env.Call(to, input, nil)
		return err
	})
	return out, err
}

// Fund 给账户注入原生币。
func (c *Chain) Fund(addr common.Address, amount *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.world.Fund(addr, amount)
}

// Balance 返回原生币余额。
func (c *Chain) Balance(addr common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.world.Balance(addr)
}

// BalanceOf 按输出的口径查询余额，与路由器校验输出时的读数一致。
func (c *Chain) BalanceOf(ctx context.Context, o router.Output) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var balance *big.Int
	err := c.world.StaticView(ctx, c.router.Address(), c.router.Address(), func(env *chain.Env) error {
		var err error
		balance, err = router.BalanceOf(env, o)
		return err
	})
	return balance, err
}

// Approve 授权路由器代 owner 转移 token：同质化代币授权最大额度，NFT 与 ERC1155 设置全部授权。
func (c *Chain) Approve(ctx context.Context, owner, token common.Address, eip router.AssetClass) error {
	var input []byte
	switch eip {
	case router.AssetERC20, router.AssetERC777:
		input = chain.MustPack(assets.ERC20, "approve", c.router.Address(), math.MaxBig256)
	case router.AssetERC721:
		input = chain.MustPack(assets.ERC721, "setApprovalForAll", c.router.Address(), true)
	case router.AssetERC1155:
		input = chain.MustPack(assets.ERC1155, "setApprovalForAll", c.router.Address(), true)
	default:
		return fmt.Errorf("资产类型 %s 无需授权", eip)
	}
	_, err := c.Transact(ctx, owner, token, input, nil)
	return err
}

// Commitment 返回承诺的剩余额度。
func (c *Chain) Commitment(ctx context.Context, p router.Payment) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var remaining *big.Int
	_ = c.world.StaticView(ctx, c.router.Address(), c.router.Address(), func(env *chain.Env) error {
		remaining = c.router.Commitment(env, p)
		return nil
	})
	return remaining
}

// Discard 以 from 身份减少一笔承诺。
func (c *Chain) Discard(ctx context.Context, from common.Address, key []byte, amount *big.Int) error {
	if a := bigOrZero(amount); a.Sign() < 0 || a.BitLen() > 256 {
		return fmt.Errorf("discard 数量 %s 超出 uint256 范围", a)
	}
	input, err := router.ABI.Pack("discard", key, bigOrZero(amount))
	if err != nil {
		return fmt.Errorf("编码 discard 调用失败: %w", err)
	}
	if _, err := c.Transact(ctx, from, c.router.Address(), input, nil); err != nil {
		return err
	}
	logger.Audit().Info("承诺已撤销", slog.String("caller", from.Hex()), slog.String("amount", bigOrZero(amount).String()))
	return nil
}

// Pause 暂停路由器，from 必须是 pauser 且附带非零原生币。
func (c *Chain) Pause(ctx context.Context, from common.Address, value *big.Int) error {
	if _, err := c.Transact(ctx, from, c.router.Address(), chain.MustPack(router.ABI, "pause"), value); err != nil {
		return err
	}
	logger.Audit().Info("路由器已暂停", slog.String("caller", from.Hex()))
	return nil
}

// Unpause 恢复路由器。
func (c *Chain) Unpause(ctx context.Context, from common.Address) error {
	if _, err := c.Transact(ctx, from, c.router.Address(), chain.MustPack(router.ABI, "unpause"), nil); err != nil {
		return err
	}
	logger.Audit().Info("路由器已恢复", slog.String("caller", from.Hex()))
	return nil
}

// Paused 判断路由器是否处于暂停状态。
func (c *Chain) Paused(ctx context.Context) (bool, error) {
	out, err := c.View(ctx, common.Address{}, c.router.Address(), chain.MustPack(router.ABI, "paused"))
	if err != nil {
		return false, err
	}
	values, err := router.ABI.Unpack("paused", out)
	if err != nil {
		return false, err
	}
	return values[0].(bool), nil
}

// SupportsInterface 查询路由器是否实现给定接口。
func (c *Chain) SupportsInterface(ctx context.Context, id [4]byte) (bool, error) {
	out, err := c.View(ctx, common.Address{}, c.router.Address(), chain.MustPack(router.ABI, "supportsInterface", id))
	if err != nil {
		return false, err
	}
	values, err := router.ABI.Unpack("supportsInterface", out)
	if err != nil {
		return false, err
	}
	return values[0].(bool), nil
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
