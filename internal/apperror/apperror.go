// Package apperror 定义了导入流程中所有层共享的错误分类。
package apperror

import (
	"errors"
	"net/http"
)

// Kind 区分错误是客户端输入问题还是存储问题。
type Kind int

const (
	KindUnsupportedMediaType Kind = iota + 1
	KindMalformedInput
	KindSchemaMismatch
	KindStorageWrite
	KindStorageRead
)

// Code 返回写入响应体 "error" 字段的机器可读编码。
func (k Kind) Code() string {
	switch k {
	case KindUnsupportedMediaType:
		return "unsupported_media_type"
	case KindMalformedInput:
		return "malformed_input"
	case KindSchemaMismatch:
		return "schema_mismatch"
	case KindStorageWrite:
		return "storage_write"
	case KindStorageRead:
		return "storage_read"
	default:
		return "internal"
	}
}

// HTTPStatus 将错误分类映射为 HTTP 状态码。
func (k Kind) HTTPStatus() int {
	switch k {
	case KindUnsupportedMediaType, KindMalformedInput, KindSchemaMismatch:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// IsClient 报告该类错误是否由调用方输入引起（不会触发任何存储写入）。
func (k Kind) IsClient() bool {
	return k.HTTPStatus() < http.StatusInternalServerError
}

// Error 是携带分类信息的错误。Msg 面向调用方，Err 保留底层原因供日志使用。
type Error struct {
	Kind            Kind
	Msg             string
	RequiredColumns []string
	Err             error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is 让 errors.Is 可以按分类匹配下面的哨兵错误。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Msg != "" {
		return false
	}
	return t.Kind == e.Kind
}

// 各分类的哨兵，只用于 errors.Is 比较。
var (
	ErrUnsupportedMediaType = &Error{Kind: KindUnsupportedMediaType}
	ErrMalformedInput       = &Error{Kind: KindMalformedInput}
	ErrSchemaMismatch       = &Error{Kind: KindSchemaMismatch}
	ErrStorageWrite         = &Error{Kind: KindStorageWrite}
	ErrStorageRead          = &Error{Kind: KindStorageRead}
)

// UnsupportedMediaType 表示上传文件不是 CSV。
func UnsupportedMediaType(msg string) *Error {
	return &Error{Kind: KindUnsupportedMediaType, Msg: msg}
}

// MalformedInput 表示内容无法解析为 CSV，或某个单元格无法转换。
func MalformedInput(msg string, err error) *Error {
	return &Error{Kind: KindMalformedInput, Msg: msg, Err: err}
}

// SchemaMismatch 返回的错误带上完整的必需列清单，便于调用方自行修正。
func SchemaMismatch(msg string, required []string) *Error {
	cols := make([]string, len(required))
	copy(cols, required)
	return &Error{Kind: KindSchemaMismatch, Msg: msg, RequiredColumns: cols}
}

// StorageWrite 表示归档或入库失败。
func StorageWrite(msg string, err error) *Error {
	return &Error{Kind: KindStorageWrite, Msg: msg, Err: err}
}

// StorageRead 表示读取归档或查询统计失败。
func StorageRead(msg string, err error) *Error {
	return &Error{Kind: KindStorageRead, Msg: msg, Err: err}
}

// As 取出错误链中的 *Error；不存在时返回 nil。
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}
