package core

import (
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
)

// GenericErrorReply — ответ пользователю при любой неожиданной ошибке команды.
const GenericErrorReply = "⚠️ Command failed. Check logs."

// AdminOnlyReply — отказ не-админу в админской команде.
const AdminOnlyReply = "⛔ Admins only."

// HandlerFunc — обработчик сообщения или команды.
type HandlerFunc func(mc *MessageContext) error

// Middleware оборачивает HandlerFunc.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain применяет middleware в порядке перечисления (первый — самый внешний).
func Chain(h HandlerFunc, mws ...Middleware) HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// LoggerMiddleware логирует все команды.
// Русский комментарий: Логи на английском для единообразия операционных сообщений.
func LoggerMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(mc *MessageContext) error {
			start := time.Now()
			err := next(mc)
			fields := []zap.Field{
				zap.String("chat_id", mc.Message.GroupID),
				zap.String("user_id", mc.Message.SenderID),
				zap.String("message_id", mc.Message.ID),
				zap.String("command", mc.Command),
				zap.Duration("latency", time.Since(start)),
			}
			if err != nil {
				logger.Error("command failed", append(fields, zap.Error(err))...)
				return err
			}
			logger.Info("command handled", fields...)
			return nil
		}
	}
}

// PanicRecoveryMiddleware ловит panic и логирует его вместо падения бота.
// Русский комментарий: Если модуль паникует — логируем стек-трейс и превращаем panic в ошибку.
// Ответ в чат отправляет ErrorReplyMiddleware, подписка на сообщения продолжает работать.
func PanicRecoveryMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(mc *MessageContext) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("panic recovered in handler",
						zap.Any("panic", r),
						zap.String("command", mc.Command),
						zap.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("panic recovered: %v", r)
				}
			}()

			return next(mc)
		}
	}
}

// ErrorReplyMiddleware превращает ошибку обработчика в один видимый ответ.
// Русский комментарий: Ошибка всё равно возвращается наверх для логов и метрик.
func ErrorReplyMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(mc *MessageContext) error {
			err := next(mc)
			if err == nil {
				return nil
			}
			if replyErr := mc.Reply(GenericErrorReply); replyErr != nil {
				logger.Warn("failed to send error reply", zap.Error(replyErr))
			}
			return err
		}
	}
}
