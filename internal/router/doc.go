// Package router 实现通用代币路由器的结算核心。
//
// 一次 Exec 调用即一个批次：先在暂停守卫下记录所有输出的初始余额，然后按顺序对每个
// 动作结算输入（CALL_VALUE、TRANSFER、PAYMENT）、经调用守卫检查后调用动作目标，
// 最后校验每个输出的最小到账量。任一环节失败，宿主回滚整个批次。
//
// PAYMENT 输入只在账本中登记承诺，由动作目标在执行期间回调 pay 完成实际转账。
package router
