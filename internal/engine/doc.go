// Package engine 同步引擎: 把入站消息转换为会话存储的修改, 并决定向哪个房间广播什么事件.
//
// 每个处理函数都在持有会话锁时完成修改与广播, 房间内所有成员看到的事件顺序与应用顺序一致.
// 后写者胜, 不做合并.
//
// 引擎不会把错误回传给客户端: 格式错误或越权的请求记录日志后丢弃, 未知会话的请求直接忽略.
package engine
