package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func quietLogConfig(t *testing.T, level string) LogConfig {
	t.Helper()
	config := DefaultLogConfig()
	config.Level = level
	config.LogDir = filepath.Join(t.TempDir(), "logs")
	config.Compress = false
	config.Quiet = true
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.DebugLevel) })
	return config
}

func readLog(t *testing.T, config LogConfig, name string) string {
	t.Helper()
	content, err := os.ReadFile(filepath.Join(config.LogDir, name))
	if err != nil {
		t.Fatalf("读取日志文件失败: %v", err)
	}
	return string(content)
}

func TestInitLogger_Levels(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantDebug bool
	}{
		{"info级别过滤debug", "info", false},
		{"debug级别", "debug", true},
		{"非法级别回退info", "loud", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := quietLogConfig(t, tt.level)
			if err := InitLogger(config); err != nil {
				t.Fatalf("InitLogger() error = %v", err)
			}

			Infof("已发现 %d 个目标", 3)
			Debugf("会话 %s 已打开", "s-1")

			content := readLog(t, config, MainLogFile)
			if !strings.Contains(content, "已发现 3 个目标") {
				t.Errorf("主日志缺少info日志: %s", content)
			}
			if got := strings.Contains(content, "会话 s-1 已打开"); got != tt.wantDebug {
				t.Errorf("主日志包含debug日志 = %v, want %v", got, tt.wantDebug)
			}
		})
	}
}

func TestInitLogger_ErrorFile(t *testing.T) {
	config := quietLogConfig(t, "info")
	if err := InitLogger(config); err != nil {
		t.Fatalf("InitLogger() error = %v", err)
	}

	Warn("普通警告不应进入错误日志")
	Errorf("目标处理失败: %s", "https://example.com/mip/a-1")

	content := readLog(t, config, ErrorLogFile)
	if strings.Contains(content, "普通警告") {
		t.Error("错误日志中出现了warn级别的日志")
	}
	if !strings.Contains(content, "目标处理失败") {
		t.Error("错误日志中缺少error级别的日志")
	}
}

func TestFilteredWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &FilteredWriter{Writer: &buf, MinLevel: zerolog.ErrorLevel}

	tests := []struct {
		level zerolog.Level
		msg   string
		want  bool
	}{
		{zerolog.InfoLevel, "info", false},
		{zerolog.ErrorLevel, "error", true},
		{zerolog.FatalLevel, "fatal", true},
	}

	for _, tt := range tests {
		buf.Reset()
		n, err := w.WriteLevel(tt.level, []byte(tt.msg))
		if err != nil || n != len(tt.msg) {
			t.Errorf("WriteLevel(%v) = %d, %v", tt.level, n, err)
		}
		if got := buf.String() == tt.msg; got != tt.want {
			t.Errorf("WriteLevel(%v) 写入 = %v, want %v", tt.level, got, tt.want)
		}
	}

	buf.Reset()
	if n, _ := w.Write([]byte("plain")); n != 5 || buf.Len() != 0 {
		t.Errorf("Write() 应丢弃无级别输出, n = %d, buf = %q", n, buf.String())
	}
}

func TestDefaultLogConfig(t *testing.T) {
	config := DefaultLogConfig()

	if config.Level != "info" || config.LogDir != "logs" {
		t.Errorf("DefaultLogConfig() = %+v", config)
	}
	if config.MaxSize != 10 || config.MaxBackups != 3 || config.MaxAge != 28 || !config.Compress {
		t.Errorf("轮转配置 = %+v, want 10/3/28/压缩", config)
	}
}
