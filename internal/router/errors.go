package router

import (
	"errors"

	"OpenUTR/internal/chain"
	apperrors "OpenUTR/internal/errors"
)

// 路由器错误码与链上 revert 标签一一对应。
const (
	CodeNotCallable            apperrors.Code = "NOT_CALLABLE"
	CodeInvalidAssetClass      apperrors.Code = "INVALID_EIP"
	CodeInvalidMode            apperrors.Code = "INVALID_MODE"
	CodeInsufficientOutput     apperrors.Code = "INSUFFICIENT_OUTPUT_AMOUNT"
	CodeOutputBalanceOverflow  apperrors.Code = "OUTPUT_BALANCE_OVERFLOW"
	CodeInsufficientCommitment apperrors.Code = "INSUFFICIENT_COMMITMENT"
	CodePaused                 apperrors.Code = "PAUSED"
	CodeUnauthorized           apperrors.Code = "UNAUTHORIZED"
	CodeMissingValue           apperrors.Code = "NEED_VALUE"
	CodeTransferFailed         apperrors.Code = "TRANSFER_FAILED"
	CodeInvalidPayment         apperrors.Code = "INVALID_PAYMENT"
)

func init() {
	apperrors.Register(CodeNotCallable, apperrors.Attributes{Message: "call is not allowed", Severity: apperrors.SeverityWarning})
	apperrors.Register(CodeInvalidAssetClass, apperrors.Attributes{Message: "unsupported asset class", Severity: apperrors.SeverityInfo})
	apperrors.Register(CodeInvalidMode, apperrors.Attributes{Message: "unsupported settlement mode", Severity: apperrors.SeverityInfo})
	apperrors.Register(CodeInsufficientOutput, apperrors.Attributes{Message: "output below minimum amount", Severity: apperrors.SeverityInfo})
	apperrors.Register(CodeOutputBalanceOverflow, apperrors.Attributes{Message: "output balance overflow", Severity: apperrors.SeverityWarning})
	apperrors.Register(CodeInsufficientCommitment, apperrors.Attributes{Message: "amount exceeds remaining commitment", Severity: apperrors.SeverityInfo})
	apperrors.Register(CodePaused, apperrors.Attributes{Message: "router is paused", Severity: apperrors.SeverityWarning})
	apperrors.Register(CodeUnauthorized, apperrors.Attributes{Message: "caller is not authorized", Severity: apperrors.SeverityWarning, Alert: true})
	apperrors.Register(CodeMissingValue, apperrors.Attributes{Message: "native value required", Severity: apperrors.SeverityInfo})
	apperrors.Register(CodeTransferFailed, apperrors.Attributes{Message: "asset transfer failed", Severity: apperrors.SeverityInfo})
	apperrors.Register(CodeInvalidPayment, apperrors.Attributes{Message: "malformed payment key", Severity: apperrors.SeverityInfo})
}

func fail(code apperrors.Code, format string, args ...any) error {
	if format == "" {
		return apperrors.New(code, "")
	}
	return apperrors.Newf(code, format, args...)
}

// CodeCalleeFailure 标记动作目标或其下游调用的 revert，原因字符串原样保留在错误中。
const CodeCalleeFailure apperrors.Code = "CALLEE_FAILURE"

func init() {
	apperrors.Register(CodeCalleeFailure, apperrors.Attributes{Message: "callee reverted", Severity: apperrors.SeverityInfo})
}

// ErrorCode 对批次失败进行归类。callee 的 revert 不会被包装，因此单独识别。
func ErrorCode(err error) apperrors.Code {
	if err == nil {
		return ""
	}
	if e, ok := apperrors.From(err); ok {
		return e.Code()
	}
	var revert *chain.RevertError
	if errors.As(err, &revert) {
		return CodeCalleeFailure
	}
	if errors.Is(err, chain.ErrInsufficientBalance) || errors.Is(err, chain.ErrValueOverflow) || errors.Is(err, chain.ErrNegativeValue) {
		return CodeTransferFailed
	}
	return apperrors.CodeUnknown
}
