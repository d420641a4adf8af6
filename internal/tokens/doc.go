// Package tokens 提供本地开发网使用的代币合约实现，覆盖 ERC20、WETH、ERC777、
// ERC721 与 ERC1155。所有状态均写入 chain.World 的存储槽，随调用帧一同回滚。
package tokens
