package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// erc1155ABIJSON 所有权/授权探测与元数据读取用到的 ERC1155 子集
const erc1155ABIJSON = `[
  {"inputs":[{"name":"account","type":"address"},{"name":"id","type":"uint256"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"account","type":"address"},{"name":"operator","type":"address"}],"name":"isApprovedForAll","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"operator","type":"address"},{"name":"approved","type":"bool"}],"name":"setApprovalForAll","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"name":"id","type":"uint256"}],"name":"uri","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"}
]`

const erc721ABIJSON = `[
  {"inputs":[{"name":"tokenId","type":"uint256"}],"name":"ownerOf","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"tokenId","type":"uint256"}],"name":"getApproved","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"name":"approve","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"name":"tokenId","type":"uint256"}],"name":"tokenURI","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"}
]`

// tradeABIJSON 交易合约：开单、成交、查询，以及两个事件
const tradeABIJSON = `[
  {"inputs":[
    {"name":"_openingContract","type":"address"},
    {"name":"_openingTokenId","type":"uint256"},
    {"name":"_closingContract","type":"address"},
    {"name":"_closingTokenId","type":"uint256"},
    {"name":"_expiryDate","type":"uint256"}
  ],"name":"openNewTrade","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[
    {"name":"_tradeId","type":"uint256"},
    {"name":"_openingTokenType","type":"uint8"},
    {"name":"_closingTokenType","type":"uint8"}
  ],"name":"executeTrade","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"name":"_tradeId","type":"uint256"}],"name":"getTradeByTradeId","outputs":[
    {"name":"tradeId","type":"uint256"},
    {"name":"openingContract","type":"address"},
    {"name":"openingTokenId","type":"uint256"},
    {"name":"closingContract","type":"address"},
    {"name":"closingTokenId","type":"uint256"},
    {"name":"expiryDate","type":"uint256"},
    {"name":"successfulTradeId","type":"uint256"},
    {"name":"tradeOpener","type":"address"}
  ],"stateMutability":"view","type":"function"},
  {"anonymous":false,"inputs":[
    {"indexed":true,"name":"tradeId","type":"uint256"},
    {"indexed":true,"name":"tradeOpener","type":"address"}
  ],"name":"TradeOpened","type":"event"},
  {"anonymous":false,"inputs":[
    {"indexed":true,"name":"tradeId","type":"uint256"},
    {"indexed":true,"name":"tradeCloser","type":"address"}
  ],"name":"TradeExecuted","type":"event"}
]`

var (
	erc1155ABI = mustParseABI("ERC1155", erc1155ABIJSON)
	erc721ABI  = mustParseABI("ERC721", erc721ABIJSON)
	tradeABI   = mustParseABI("trade", tradeABIJSON)
)

func mustParseABI(name, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("解析" + name + " ABI失败: " + err.Error())
	}
	return parsed
}
