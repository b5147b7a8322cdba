package logx

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Русский комментарий: Этот пакет инкапсулирует настройку структурированного логирования.
// Вся операционная информация выводится только на английском.
// zap — для производительности и единообразия формата, lumberjack — для ротации файлов.

// LogRotationConfig содержит параметры ротации логов.
type LogRotationConfig struct {
	Filename   string // путь к файлу лога; пусто = только stdout
	MaxSizeMB  int    // максимальный размер файла лога в MB
	MaxBackups int    // количество старых файлов для хранения
	MaxAgeDays int    // максимальный возраст файла лога в днях
}

// NewLogger создаёт новый логгер с заданным уровнем и режимом.
// Русский комментарий: Без глобального состояния — логгер создаётся в cmd/bot/main.go
// и явно передаётся во все компоненты.
func NewLogger(level string, pretty bool, rotationCfg LogRotationConfig) (*zap.Logger, error) {
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		zapLevel = zapcore.InfoLevel // fallback to info
	}

	var encoderCfg zapcore.EncoderConfig
	if pretty {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
	} else {
		encoderCfg = zap.NewProductionEncoderConfig()
	}
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if pretty {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), zapLevel),
	}

	// Файл с ротацией через lumberjack
	if rotationCfg.Filename != "" {
		logFile := &lumberjack.Logger{
			Filename:   rotationCfg.Filename,
			MaxSize:    rotationCfg.MaxSizeMB,
			MaxBackups: rotationCfg.MaxBackups,
			MaxAge:     rotationCfg.MaxAgeDays,
			Compress:   true, // сжимаем старые файлы
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(logFile), zapLevel))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}
