package utils

import (
	"fmt"
	"runtime/debug"
)

// GetStackWithError は err にスタックトレースを付けて返します
// Step Functions の失敗理由やログから呼び出し元を追えるようにするためのものです
func GetStackWithError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w\nStack trace:\n%s", err, debug.Stack())
}
