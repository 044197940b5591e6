package sysutil

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Log *zap.Logger
var LogSugar *zap.SugaredLogger

func init() {
	Log = zap.NewNop()
	LogSugar = Log.Sugar()
}

// InitLogger 初始化日志：控制台输出，带颜色级别和调用位置。
// jsonOutput 为 true 时输出 JSON，便于交给日志收集。
func InitLogger(debug, jsonOutput bool) {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder // 格式化时间输出

	var encoder zapcore.Encoder
	if jsonOutput {
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewJSONEncoder(config.EncoderConfig)
	} else {
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder // 彩色级别
		encoder = zapcore.NewConsoleEncoder(config.EncoderConfig)
	}

	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}
	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), level)
	Log = zap.New(core, zap.AddCaller())
	LogSugar = Log.Sugar()
}
