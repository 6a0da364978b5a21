package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"almond/backend/pkg/database"
)

var rollbackSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "数据库迁移",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "执行全部未应用的迁移",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer closeDB(db)

		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		if err := database.RunMigrations(sqlDB, logger); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("迁移完成"))
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "回滚迁移",
	RunE: func(cmd *cobra.Command, args []string) error {
		if rollbackSteps <= 0 {
			return fmt.Errorf("--steps 必须为正整数")
		}
		_, db, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer closeDB(db)

		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		if err := database.RollbackMigrations(sqlDB, rollbackSteps, logger); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("已回滚 %d 步", rollbackSteps)))
		return nil
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "查看当前迁移版本",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, _, err := bootstrap()
		if err != nil {
			return err
		}
		defer closeDB(db)

		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		version, dirty, err := database.MigrationVersion(sqlDB)
		if err != nil {
			return err
		}
		line := fmt.Sprintf("version=%d dirty=%t", version, dirty)
		if dirty {
			line = errorStyle.Render(line)
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
		return nil
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&rollbackSteps, "steps", 1, "回滚步数")

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateVersionCmd)
}
