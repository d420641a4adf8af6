// Package adapters 提供路由器动作的示例目标：原生币包装、道具发放与固定汇率兑换。
// 路由器把它们当作不透明的被调用方，只通过输入结算与输出校验约束其行为。
package adapters
