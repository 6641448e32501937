package service

import "errors"

// ErrForbidden 主体无权访问目标资源（患者访问他人设备、医生访问未分配患者）
var ErrForbidden = errors.New("forbidden")

// ErrDeviceInUse 设备仍被已存读数引用，不允许硬删除
var ErrDeviceInUse = errors.New("device has stored readings")
