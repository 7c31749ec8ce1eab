package utils

import "os"

// EnsureDir はディレクトリが存在することを保証します
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// FileExists はファイルが存在するかどうかを返します
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
