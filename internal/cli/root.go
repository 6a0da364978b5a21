package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"almond/backend/config"
	"almond/backend/pkg/database"
	applogger "almond/backend/pkg/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "almondctl",
	Short:         "协作周期服务运维工具",
	Long:          `almondctl 用于执行数据库迁移、导入初始数据以及查看任务周期进度。`,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径（默认 ./config/config.yaml）")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(statusCmd)
}

// Execute 执行根命令
func Execute() error {
	return rootCmd.Execute()
}

// bootstrap 加载配置、日志并连接数据库
func bootstrap() (*config.Config, *gorm.DB, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, db, logger, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}
