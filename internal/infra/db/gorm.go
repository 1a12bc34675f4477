package db

import (
	"marketplace/internal/config"
	"marketplace/internal/domain/model"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Connect はDBに接続して *gorm.DB を返す。
func Connect(cfg config.Config) (*gorm.DB, error) {
	level := gormlogger.Warn
	if cfg.IsProd() {
		level = gormlogger.Error
	}

	gdb, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(level),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	zap.S().Infof("database connection successful, host: %s", cfg.PostgresHost)
	return gdb, nil
}

var tables = []interface{}{
	&model.Product{},
	&model.DeliverySlot{},
	&model.Order{},
	&model.OrderItem{},
	&model.Booking{},
	&model.Invoice{},
	&model.AuditLog{},
}

// 1ユーザー1件のDRAFT（gormのタグでは部分インデックスを書けない）
const draftPerUserIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_one_draft_per_user
ON orders (user_id) WHERE status = 'DRAFT'`

// 同一注文・同一商品の明細は1行
const orderItemPerProductIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_order_items_order_product
ON order_items (order_id, product_id)`

func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(tables...); err != nil {
		return err
	}
	for _, stmt := range []string{draftPerUserIndex, orderItemPerProductIndex} {
		if err := gdb.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
