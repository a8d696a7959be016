package main

import (
	"github.com/SlpAus/flag-training-backend/internal/platform/startup"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "只迁移数据库表结构后退出",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, log, db, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		return startup.InitializeApplication(db, log)
	},
}
