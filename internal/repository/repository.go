package repository

import "errors"

// ErrNotFound 目标记录不存在（设备/患者/读数）
var ErrNotFound = errors.New("not found")

// ErrDuplicate 唯一约束冲突（如 hardware_id 已注册）
var ErrDuplicate = errors.New("already exists")
