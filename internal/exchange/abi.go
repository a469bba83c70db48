package exchange

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// exchangeABI 交易所合约中本服务用到的函数与事件
const exchangeABI = `[
{"type":"function","name":"margin","stateMutability":"view","inputs":[{"name":"trader","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"markPrice","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"indexPrice","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"bestBuyId","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"bestSellId","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"initialMarginBps","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint16"}]},
{"type":"function","name":"orders","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],"outputs":[
	{"name":"id","type":"uint256"},{"name":"trader","type":"address"},{"name":"isBuy","type":"bool"},
	{"name":"price","type":"uint256"},{"name":"amount","type":"uint256"},{"name":"initialAmount","type":"uint256"},
	{"name":"timestamp","type":"uint256"},{"name":"next","type":"uint256"}]},
{"type":"function","name":"lastFundingTime","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"fundingInterval","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"deposit","stateMutability":"payable","inputs":[],"outputs":[]},
{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
{"type":"function","name":"placeOrder","stateMutability":"nonpayable","inputs":[
	{"name":"isBuy","type":"bool"},{"name":"price","type":"uint256"},{"name":"amount","type":"uint256"},{"name":"hintId","type":"uint256"}],"outputs":[]},
{"type":"function","name":"cancelOrder","stateMutability":"nonpayable","inputs":[{"name":"orderId","type":"uint256"}],"outputs":[]},
{"type":"function","name":"settleFunding","stateMutability":"nonpayable","inputs":[],"outputs":[]},
{"type":"function","name":"updateIndexPrice","stateMutability":"nonpayable","inputs":[{"name":"newIndexPrice","type":"uint256"}],"outputs":[]},
{"type":"event","name":"MarginDeposited","anonymous":false,"inputs":[
	{"name":"trader","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}]},
{"type":"event","name":"MarginWithdrawn","anonymous":false,"inputs":[
	{"name":"trader","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}]},
{"type":"event","name":"OrderPlaced","anonymous":false,"inputs":[
	{"name":"id","type":"uint256","indexed":true},{"name":"trader","type":"address","indexed":true},
	{"name":"isBuy","type":"bool","indexed":false},{"name":"price","type":"uint256","indexed":false},
	{"name":"amount","type":"uint256","indexed":false}]},
{"type":"event","name":"OrderRemoved","anonymous":false,"inputs":[{"name":"id","type":"uint256","indexed":true}]},
{"type":"event","name":"TradeExecuted","anonymous":false,"inputs":[
	{"name":"buyOrderId","type":"uint256","indexed":true},{"name":"sellOrderId","type":"uint256","indexed":true},
	{"name":"price","type":"uint256","indexed":false},{"name":"amount","type":"uint256","indexed":false},
	{"name":"buyer","type":"address","indexed":false},{"name":"seller","type":"address","indexed":false}]},
{"type":"event","name":"FundingSettled","anonymous":false,"inputs":[
	{"name":"rate","type":"int256","indexed":false},{"name":"timestamp","type":"uint256","indexed":false}]},
{"type":"event","name":"Liquidated","anonymous":false,"inputs":[
	{"name":"trader","type":"address","indexed":true},{"name":"liquidator","type":"address","indexed":true},
	{"name":"amount","type":"uint256","indexed":false},{"name":"price","type":"uint256","indexed":false}]}
]`

var (
	parsedABI     abi.ABI
	parsedABIOnce sync.Once
)

// ABI 返回解析后的合约 ABI（进程内共享，只读）；常量 ABI 解析失败属于编程错误，直接 panic
func ABI() *abi.ABI {
	parsedABIOnce.Do(func() {
		var err error
		parsedABI, err = abi.JSON(strings.NewReader(exchangeABI))
		if err != nil {
			panic("exchange: invalid abi: " + err.Error())
		}
	})
	return &parsedABI
}
