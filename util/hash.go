package util

import (
	"crypto/md5"
	"encoding/hex"
)

// BytesMD5 计算字节数组MD5
func BytesMD5(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
