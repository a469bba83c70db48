package exchange

import "errors"

var (
	// ErrRead 链上只读调用失败（RPC 错误、超时），调用方应保留上一次的值
	ErrRead = errors.New("exchange read failed")

	// ErrOrderNotFound 订单 id 超出已分配范围，对账扫描以此作为结束标志
	ErrOrderNotFound = errors.New("order not found")

	// ErrDecode 合约返回值或事件数据与 ABI 不符
	ErrDecode = errors.New("exchange decode failed")

	// ErrTransactionFailed 交易已上链但 receipt 状态失败，不自动重试
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrNoSigner 未配置私钥时调用写接口
	ErrNoSigner = errors.New("no signer configured")

	// ErrUnknownEvent 日志 topic 不属于交易所合约的已知事件
	ErrUnknownEvent = errors.New("unknown event")
)
