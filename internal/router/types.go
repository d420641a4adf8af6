package router

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Mode 描述一个输入的结算方式。
type Mode uint64

const (
	// ModePayment 记录一笔承诺，由动作目标在执行过程中通过 pay 拉取。
	ModePayment Mode = 0
	// ModeTransfer 立即从批次发起者转账到输入的接收方。
	ModeTransfer Mode = 1
	// ModeCallValue 将原生币累加到动作调用所附带的 value 上。
	ModeCallValue Mode = 2
)

func (m Mode) String() string {
	switch m {
	case ModePayment:
		return "PAYMENT"
	case ModeTransfer:
		return "TRANSFER"
	case ModeCallValue:
		return "CALL_VALUE"
	default:
		return fmt.Sprintf("MODE(%d)", uint64(m))
	}
}

// AssetClass 以 EIP 编号标识资产标准，原生币为 0。
type AssetClass uint64

const (
	AssetNative  AssetClass = 0
	AssetERC20   AssetClass = 20
	AssetERC721  AssetClass = 721
	AssetERC777  AssetClass = 777
	AssetERC1155 AssetClass = 1155
)

func (c AssetClass) String() string {
	switch c {
	case AssetNative:
		return "NATIVE"
	case AssetERC20:
		return "ERC20"
	case AssetERC721:
		return "ERC721"
	case AssetERC777:
		return "ERC777"
	case AssetERC1155:
		return "ERC1155"
	default:
		return fmt.Sprintf("EIP(%d)", uint64(c))
	}
}

// AllNFTSentinel 作为 ERC721 输出的 ID 时，表示统计接收方持有该集合的总数量。
var AllNFTSentinel = crypto.Keccak256Hash([]byte("UniversalTokenRouter.ERC_721_BALANCE")).Big()

// Input 描述动作执行前需要结算的一笔资产。
type Input struct {
	Mode      Mode           `json:"mode"`
	EIP       AssetClass     `json:"eip"`
	Token     common.Address `json:"token"`
	ID        *big.Int       `json:"id,omitempty"`
	Amount    *big.Int       `json:"amount"`
	Recipient common.Address `json:"recipient"`
}

// Output 描述批次结束后必须满足的最小到账量。
type Output struct {
	EIP       AssetClass     `json:"eip"`
	Token     common.Address `json:"token"`
	ID        *big.Int       `json:"id,omitempty"`
	MinAmount *big.Int       `json:"amountOutMin"`
	Recipient common.Address `json:"recipient"`
}

// Action 是批次中的一次外部调用及其输入。
type Action struct {
	Inputs  []Input        `json:"inputs"`
	Flags   *big.Int       `json:"flags,omitempty"`
	Target  common.Address `json:"code"`
	Payload hexutil.Bytes  `json:"data"`
}

// IsNoop 判断动作是否为空动作：零地址目标且没有调用数据。
func (a Action) IsNoop() bool {
	return a.Target == (common.Address{}) && len(a.Payload) == 0
}

// Payment 是承诺账本的键，标识付款方、接收方与具体资产。
type Payment struct {
	Payer     common.Address `json:"payer"`
	Recipient common.Address `json:"recipient"`
	EIP       AssetClass     `json:"eip"`
	Token     common.Address `json:"token"`
	ID        *big.Int       `json:"id"`
}

var paymentArguments = abi.Arguments{
	{Type: mustType("address")},
	{Type: mustType("address")},
	{Type: mustType("uint256")},
	{Type: mustType("address")},
	{Type: mustType("uint256")},
}

func mustType(name string) abi.Type {
	typ, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// Encode 返回承诺键的 ABI 编码，pay 与 discard 以该编码作为参数。
func (p Payment) Encode() []byte {
	data, err := paymentArguments.Pack(p.Payer, p.Recipient, new(big.Int).SetUint64(uint64(p.EIP)), p.Token, bigOrZero(p.ID))
	if err != nil {
		// 参数类型固定，打包不会失败
		panic(err)
	}
	return data
}

// Slot 返回该承诺在路由器存储中的槽位。
func (p Payment) Slot() common.Hash {
	return crypto.Keccak256Hash(p.Encode())
}

// DecodePayment 解析 pay 与 discard 收到的承诺键。
func DecodePayment(key []byte) (Payment, error) {
	values, err := paymentArguments.Unpack(key)
	if err != nil {
		return Payment{}, fmt.Errorf("解析承诺键失败: %w", err)
	}
	eip := values[2].(*big.Int)
	if !eip.IsUint64() {
		return Payment{}, fmt.Errorf("承诺键中的资产类型超出范围: %s", eip)
	}
	return Payment{
		Payer:     values[0].(common.Address),
		Recipient: values[1].(common.Address),
		EIP:       AssetClass(eip.Uint64()),
		Token:     values[3].(common.Address),
		ID:        values[4].(*big.Int),
	}, nil
}

// Delta 记录一个输出在批次前后的余额。
type Delta struct {
	Output Output   `json:"output"`
	Before *big.Int `json:"before"`
	After  *big.Int `json:"after"`
}

// Received 返回批次内接收方实际增加的数量。
func (d Delta) Received() *big.Int {
	return new(big.Int).Sub(d.After, d.Before)
}

// Receipt 是一次成功执行的结果。
type Receipt struct {
	Outputs []Delta  `json:"outputs"`
	Refund  *big.Int `json:"refund"`
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
