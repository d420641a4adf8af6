package adapters

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"OpenUTR/internal/assets"
	"OpenUTR/internal/chain"
)

// NFTController 是道具集合的铸造者，按请求给玩家发放 ERC721 道具。
type NFTController struct {
	item common.Address
}

// NewNFTController 创建控制器，item 集合的 minter 必须是该控制器的地址。
func NewNFTController(item common.Address) *NFTController {
	return &NFTController{item: item}
}

func (c *NFTController) award(env *chain.Env, player common.Address) (*big.Int, error) {
	out, err := env.Call(c.item, chain.MustPack(assets.ERC721, "mint", player), nil)
	if err != nil {
		return nil, err
	}
	values, err := assets.ERC721.Unpack("mint", out)
	if err != nil {
		return nil, err
	}
	return values[0].(*big.Int), nil
}

// Call 实现 chain.Contract。
func (c *NFTController) Call(env *chain.Env, input []byte) ([]byte, error) {
	method, args, err := chain.Decode(NFTControllerABI, input)
	if err != nil {
		return nil, chain.Revert("NFTController: unsupported call")
	}
	if env.Value().Sign() > 0 {
		return nil, chain.Revert("NFTController: function is not payable")
	}
	switch method.Name {
	case "awardItem":
		id, err := c.award(env, args[0].(common.Address))
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(id)
	case "awardItems":
		amount := args[0].(*big.Int)
		if !amount.IsUint64() || amount.Uint64() > 256 {
			return nil, chain.Revert("NFTController: too many items")
		}
		player := args[1].(common.Address)
		for i := uint64(0); i < amount.Uint64(); i++ {
			if _, err := c.award(env, player); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}
	return nil, chain.Revert("NFTController: unsupported call")
}
