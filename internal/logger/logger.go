package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger 创建一个新的日志记录器
// debug 开启 Debug 级别，verbose 附带调用方信息
func NewLogger(debug bool, verbose bool) *zap.Logger {
	config := baseConfig(debug, verbose)

	logger, err := config.Build()
	if err != nil {
		panic("初始化日志系统失败: " + err.Error())
	}

	return logger
}

// NewFileLogger 创建同时输出到文件的日志记录器，会话日志随缓存目录保存
func NewFileLogger(debug bool, verbose bool, logPath string) *zap.Logger {
	config := baseConfig(debug, verbose)
	config.OutputPaths = []string{"stderr", logPath}

	logger, err := config.Build()
	if err != nil {
		// 日志文件不可写时退回标准错误输出
		return NewLogger(debug, verbose)
	}

	return logger
}

func baseConfig(debug bool, verbose bool) zap.Config {
	config := zap.NewProductionConfig()

	if debug {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	config.Encoding = "console"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	config.DisableStacktrace = true
	config.DisableCaller = !verbose

	return config
}
