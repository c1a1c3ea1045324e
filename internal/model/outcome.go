package model

import (
	"fmt"
	"strings"
)

// FailureKind 区分后端失败的类别，调用方据此分支而不是匹配字符串。
type FailureKind string

const (
	KindNetwork      FailureKind = "network"
	KindParse        FailureKind = "parse"
	KindEmptyInput   FailureKind = "empty_input"
	KindUnknownAgent FailureKind = "unknown_agent"
	KindExecution    FailureKind = "execution"
	KindNoContent    FailureKind = "no_content"
)

const (
	markerError   = "❌"
	markerWarning = "⚠️"
)

// FailureMarkers 是展示层失败文本的前缀。执行器会拒绝包含这些标记的输入。
var FailureMarkers = []string{markerError, markerWarning, "Code suggestion error"}

// Failure 是带类别的失败结果，Message 用于展示。
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
	Cause   error       `json:"-"`
}

func (f *Failure) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Cause)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error { return f.Cause }

// Display 返回带标记前缀的可读文本。
func (f *Failure) Display() string {
	switch f.Kind {
	case KindEmptyInput, KindNoContent:
		return markerWarning + " " + f.Message
	default:
		return markerError + " " + f.Message
	}
}

// Outcome 是非流式后端的统一返回：成功文本或失败。
type Outcome struct {
	Text string   `json:"text,omitempty"`
	Err  *Failure `json:"error,omitempty"`
}

// Succeed 构造成功结果。
func Succeed(text string) Outcome {
	return Outcome{Text: text}
}

// Fail 构造失败结果。
func Fail(kind FailureKind, message string, cause error) Outcome {
	return Outcome{Err: &Failure{Kind: kind, Message: message, Cause: cause}}
}

// OK 判断结果是否成功。
func (o Outcome) OK() bool { return o.Err == nil }

// Display 返回成功文本，或失败的展示文本。
func (o Outcome) Display() string {
	if o.Err != nil {
		return o.Err.Display()
	}
	return o.Text
}

// ContainsFailureMarker 判断文本中是否带有任意失败标记。
func ContainsFailureMarker(text string) bool {
	for _, m := range FailureMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}
