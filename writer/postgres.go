package writer

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"hyperflow/logger"
	"hyperflow/models"
)

// userFillRow is the user_fills table schema.
type userFillRow struct {
	ID            uint64  `gorm:"primaryKey;autoIncrement"`
	UserAddress   string  `gorm:"column:user_address;index"`
	Coin          string  `gorm:"column:coin;index"`
	Side          string  `gorm:"column:side"`
	Price         float64 `gorm:"column:price"`
	Size          float64 `gorm:"column:size"`
	Fee           float64 `gorm:"column:fee"`
	ClosedPnl     float64 `gorm:"column:closed_pnl"`
	Dir           string  `gorm:"column:dir"`
	Crossed       bool    `gorm:"column:crossed"`
	StartPosition float64 `gorm:"column:start_position"`
	OrderID       uint64  `gorm:"column:order_id"`
	Timestamp     int64   `gorm:"column:timestamp"`
	Hash          string  `gorm:"column:hash"`
}

func (userFillRow) TableName() string { return "user_fills" }

// PostgresSink writes fills to a user_fills table.
type PostgresSink struct {
	db  *gorm.DB
	log *logger.Entry
}

func NewPostgresSink(dsn string) (*PostgresSink, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := db.AutoMigrate(&userFillRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate user_fills table: %w", err)
	}

	log := logger.GetLogger().WithComponent("postgres_sink")
	log.Info("Postgres sink initialized")

	return &PostgresSink{db: db, log: log}, nil
}

func (s *PostgresSink) Persist(fills []models.UserFill, account string) error {
	if len(fills) == 0 {
		return nil
	}

	rows := make([]userFillRow, 0, len(fills))
	for _, fill := range fills {
		rows = append(rows, userFillRow{
			UserAddress:   account,
			Coin:          fill.Coin,
			Side:          fill.Side,
			Price:         fill.Price,
			Size:          fill.Size,
			Fee:           fill.Fee,
			ClosedPnl:     fill.ClosedPnl,
			Dir:           fill.Dir,
			Crossed:       fill.Crossed,
			StartPosition: fill.StartPosition,
			OrderID:       fill.OrderID,
			Timestamp:     fill.Timestamp,
			Hash:          fill.Hash,
		})
	}

	if err := s.db.CreateInBatches(rows, 500).Error; err != nil {
		return fmt.Errorf("failed to insert fills: %w", err)
	}

	s.log.WithFields(logger.Fields{
		"account": account,
		"count":   len(rows),
	}).Debug("Inserted fills")
	logger.IncrementSinkWrite(len(rows))
	return nil
}

// Close releases the underlying connection pool.
func (s *PostgresSink) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
