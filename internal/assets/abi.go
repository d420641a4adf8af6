// Package assets holds the ABI surface of the token standards the router
// settles: ERC20, ERC721, ERC1155 and ERC777, plus the wrapped native token.
package assets

import (
	"strings"

	"OpenUTR/internal/chain"
)

const (
	fnTotalSupply  = `{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}`
	fnBalanceOf    = `{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}`
	fnAllowance    = `{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}`
	fnApprove20    = `{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}`
	fnTransfer     = `{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}`
	fnTransferFrom = `{"type":"function","name":"transferFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}`
	fnMint20       = `{"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]}`

	fnDeposit  = `{"type":"function","name":"deposit","stateMutability":"payable","inputs":[],"outputs":[]}`
	fnWithdraw = `{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"wad","type":"uint256"}],"outputs":[]}`

	fnAuthorizeOperator = `{"type":"function","name":"authorizeOperator","stateMutability":"nonpayable","inputs":[{"name":"operator","type":"address"}],"outputs":[]}`
	fnRevokeOperator    = `{"type":"function","name":"revokeOperator","stateMutability":"nonpayable","inputs":[{"name":"operator","type":"address"}],"outputs":[]}`
	fnIsOperatorFor     = `{"type":"function","name":"isOperatorFor","stateMutability":"view","inputs":[{"name":"operator","type":"address"},{"name":"holder","type":"address"}],"outputs":[{"name":"","type":"bool"}]}`
	fnSend              = `{"type":"function","name":"send","stateMutability":"nonpayable","inputs":[{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[]}`
	fnOperatorSend      = `{"type":"function","name":"operatorSend","stateMutability":"nonpayable","inputs":[{"name":"sender","type":"address"},{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"},{"name":"data","type":"bytes"},{"name":"operatorData","type":"bytes"}],"outputs":[]}`
	fnOperatorBurn      = `{"type":"function","name":"operatorBurn","stateMutability":"nonpayable","inputs":[{"name":"account","type":"address"},{"name":"amount","type":"uint256"},{"name":"data","type":"bytes"},{"name":"operatorData","type":"bytes"}],"outputs":[]}`

	fnBalanceOf721         = `{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}`
	fnOwnerOf              = `{"type":"function","name":"ownerOf","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]}`
	fnApprove721           = `{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]}`
	fnGetApproved          = `{"type":"function","name":"getApproved","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]}`
	fnSetApprovalForAll    = `{"type":"function","name":"setApprovalForAll","stateMutability":"nonpayable","inputs":[{"name":"operator","type":"address"},{"name":"approved","type":"bool"}],"outputs":[]}`
	fnIsApprovedForAll     = `{"type":"function","name":"isApprovedForAll","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"operator","type":"address"}],"outputs":[{"name":"","type":"bool"}]}`
	fnTransferFrom721      = `{"type":"function","name":"transferFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]}`
	fnSafeTransferFrom721  = `{"type":"function","name":"safeTransferFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]}`
	fnSafeTransferFrom721D = `{"type":"function","name":"safeTransferFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[]}`
	fnMint721              = `{"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"}],"outputs":[{"name":"tokenId","type":"uint256"}]}`
	fnTotalMinted          = `{"type":"function","name":"totalMinted","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}`
	fnOnERC721Received     = `{"type":"function","name":"onERC721Received","stateMutability":"nonpayable","inputs":[{"name":"operator","type":"address"},{"name":"from","type":"address"},{"name":"tokenId","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[{"name":"","type":"bytes4"}]}`

	fnBalanceOf1155          = `{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"},{"name":"id","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]}`
	fnSafeTransferFrom1155   = `{"type":"function","name":"safeTransferFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"id","type":"uint256"},{"name":"amount","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[]}`
	fnSafeBatchTransferFrom  = `{"type":"function","name":"safeBatchTransferFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"ids","type":"uint256[]"},{"name":"amounts","type":"uint256[]"},{"name":"data","type":"bytes"}],"outputs":[]}`
	fnMint1155               = `{"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"id","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[]}`
	fnOnERC1155Received      = `{"type":"function","name":"onERC1155Received","stateMutability":"nonpayable","inputs":[{"name":"operator","type":"address"},{"name":"from","type":"address"},{"name":"id","type":"uint256"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[{"name":"","type":"bytes4"}]}`
	fnOnERC1155BatchReceived = `{"type":"function","name":"onERC1155BatchReceived","stateMutability":"nonpayable","inputs":[{"name":"operator","type":"address"},{"name":"from","type":"address"},{"name":"ids","type":"uint256[]"},{"name":"values","type":"uint256[]"},{"name":"data","type":"bytes"}],"outputs":[{"name":"","type":"bytes4"}]}`
)

func join(fragments ...string) string {
	return "[" + strings.Join(fragments, ",") + "]"
}

var (
	// ERC20 is the fungible token surface including the fixture mint entry.
	ERC20 = chain.MustParseABI(join(fnTotalSupply, fnBalanceOf, fnAllowance, fnApprove20, fnTransfer, fnTransferFrom, fnMint20))
	// WETH is ERC20 plus deposit and withdraw of the native coin.
	WETH = chain.MustParseABI(join(fnTotalSupply, fnBalanceOf, fnAllowance, fnApprove20, fnTransfer, fnTransferFrom, fnMint20, fnDeposit, fnWithdraw))
	// ERC777 is ERC20 compatibility plus the operator model.
	ERC777 = chain.MustParseABI(join(fnTotalSupply, fnBalanceOf, fnAllowance, fnApprove20, fnTransfer, fnTransferFrom, fnMint20,
		fnAuthorizeOperator, fnRevokeOperator, fnIsOperatorFor, fnSend, fnOperatorSend, fnOperatorBurn))
	// ERC721 exposes both safeTransferFrom overloads; the one taking data is
	// named safeTransferFrom0 by the abi package.
	ERC721 = chain.MustParseABI(join(fnBalanceOf721, fnOwnerOf, fnApprove721, fnGetApproved, fnSetApprovalForAll, fnIsApprovedForAll,
		fnTransferFrom721, fnSafeTransferFrom721, fnSafeTransferFrom721D, fnMint721, fnTotalMinted))
	ERC1155 = chain.MustParseABI(join(fnBalanceOf1155, fnSetApprovalForAll, fnIsApprovedForAll, fnSafeTransferFrom1155,
		fnSafeBatchTransferFrom, fnMint1155))

	ERC721Receiver  = chain.MustParseABI(join(fnOnERC721Received))
	ERC1155Receiver = chain.MustParseABI(join(fnOnERC1155Received, fnOnERC1155BatchReceived))
)
