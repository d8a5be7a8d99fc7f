package errors

import (
	"errors"
	"fmt"
)

// ErrOptimisticLock 乐观锁冲突：记录已被其他操作修改
var ErrOptimisticLock = errors.New("数据已被其他操作修改，请刷新后重试")

// StaleVersionError 带定位信息的乐观锁冲突，errors.Is 视同 ErrOptimisticLock
type StaleVersionError struct {
	Table   string
	ID      string
	Version int // 写入方持有的版本
}

func (e *StaleVersionError) Error() string {
	return fmt.Sprintf("%s %s 版本 %d 已过期: %s", e.Table, e.ID, e.Version, ErrOptimisticLock.Error())
}

func (e *StaleVersionError) Is(target error) bool {
	return target == ErrOptimisticLock
}

// StaleVersion 构造乐观锁冲突错误
func StaleVersion(table, id string, version int) error {
	return &StaleVersionError{Table: table, ID: id, Version: version}
}

// AsStaleVersion 取出冲突定位信息；普通 ErrOptimisticLock 返回 false
func AsStaleVersion(err error) (*StaleVersionError, bool) {
	var se *StaleVersionError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
