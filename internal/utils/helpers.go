package utils

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

// ReadLinesFromFile 读取代理列表和批量查询文件
// 忽略空行和 # 开头的注释,没有有效行时返回错误
func ReadLinesFromFile(name string) ([]string, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("打开文件失败: %w", err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" && !strings.HasPrefix(line, "#") {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取 %s 失败: %w", name, err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("文件中没有有效内容: %s", name)
	}
	return lines, nil
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SafeFileName 把任意字符串转换为可用作文件名的形式
func SafeFileName(name string, maxLen int) string {
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		name = "unnamed"
	}
	if maxLen > 0 && len(name) > maxLen {
		name = name[:maxLen]
	}
	return name
}

// Timestamp 生成输出文件名使用的时间戳
func Timestamp(t time.Time) string {
	return t.Format("20060102_150405")
}
