package zlog

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	once   sync.Once
)

// Init 初始化全局日志：控制台 + 文件双输出，文件使用 lumberjack 滚动
func Init(logPath string) {
	once.Do(func() {
		if logPath == "" {
			logPath = "logs/roomlink.log"
		}
		_ = os.MkdirAll(filepath.Dir(logPath), 0o755)

		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    100, // MB
			MaxBackups: 7,
			MaxAge:     30, // 天
			Compress:   true,
		})

		core := zapcore.NewTee(
			zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), fileWriter, zapcore.InfoLevel),
			zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(os.Stdout), zapcore.DebugLevel),
		)

		logger = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	})
}

func l() *zap.Logger {
	if logger == nil {
		Init("")
	}
	return logger
}

func Debug(msg string, fields ...zap.Field) { l().Debug(msg, fields...) }

func Info(msg string, fields ...zap.Field) { l().Info(msg, fields...) }

func Warn(msg string, fields ...zap.Field) { l().Warn(msg, fields...) }

func Error(msg string, fields ...zap.Field) { l().Error(msg, fields...) }

// Fatal 记录后退出进程
func Fatal(msg string, fields ...zap.Field) { l().Fatal(msg, fields...) }

// Sync 刷新缓冲（进程退出前调用）
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
