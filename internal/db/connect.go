package db

import (
	"fmt"
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zulandar/padtest/internal/config"
)

// DSN builds the MySQL DSN of a store. An empty database selects none,
// used for CREATE DATABASE.
func DSN(cfg config.StoreConfig) string {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mc.DBName = cfg.Database
	mc.ParseTime = true
	return mc.FormatDSN()
}

// Open opens a GORM connection to the configured store.
func Open(cfg config.StoreConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.DriverSQLite, "":
		dialector = sqlite.Open(cfg.Path)
	case config.DriverMySQL:
		dialector = gormmysql.Open(DSN(cfg))
	default:
		return nil, fmt.Errorf("db: unknown driver %q", cfg.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: open %s store: %w", cfg.Driver, err)
	}
	return db, nil
}

// CreateDatabase creates the MySQL database of a store if it doesn't
// already exist. SQLite stores need nothing.
func CreateDatabase(cfg config.StoreConfig) error {
	if cfg.Driver != config.DriverMySQL {
		return nil
	}
	admin := cfg
	admin.Database = ""
	db, err := Open(admin)
	if err != nil {
		return fmt.Errorf("db: admin connect: %w", err)
	}
	sql := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", cfg.Database)
	if err := db.Exec(sql).Error; err != nil {
		return fmt.Errorf("db: create database %s: %w", cfg.Database, err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	return nil
}
