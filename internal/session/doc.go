// Package session 保存每个桌面会话的权威内存状态: 背景地图, 标记与先攻顺序.
// 这里不关心连接与传输协议.
//
// 所有修改都经过 Store. 每个 Session 有独立的互斥锁, 同一会话的操作互斥,
// 不同会话互不阻塞.
package session
