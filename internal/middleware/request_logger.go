package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// リクエストIDを付けて、1リクエスト1行でzapに出す
func RequestLogger(log *zap.Logger) []echo.MiddlewareFunc {
	return []echo.MiddlewareFunc{
		echomw.RequestIDWithConfig(echomw.RequestIDConfig{
			Generator: uuid.NewString,
		}),
		echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
			LogURI:       true,
			LogMethod:    true,
			LogStatus:    true,
			LogLatency:   true,
			LogRequestID: true,
			LogError:     true,
			HandleError:  true,
			LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
				fields := []zap.Field{
					zap.String("method", v.Method),
					zap.String("uri", v.URI),
					zap.Int("status", v.Status),
					zap.Duration("latency", v.Latency),
					zap.String("request_id", v.RequestID),
				}
				if uid, ok := c.Get(CtxUserIDKey).(int64); ok {
					fields = append(fields, zap.Int64("user_id", uid))
				}
				if v.Error != nil {
					log.Error("request", append(fields, zap.Error(v.Error))...)
					return nil
				}
				log.Info("request", fields...)
				return nil
			},
		}),
	}
}
