package main

import (
	"github.com/SlpAus/flag-training-backend/internal/secret"
	"github.com/spf13/cobra"
)

var rotateSecretCmd = &cobra.Command{
	Use:   "rotate-secret",
	Short: "轮换服务端密钥",
	Long: `轮换服务端密钥。此后为所有用户派生的动态Flag都会改变，
已经记录的提交不受影响。`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, log, db, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		if err := secret.Migrate(db); err != nil {
			return err
		}
		if err := secret.NewStore(db).RotateServerSecret(cmd.Context()); err != nil {
			return err
		}
		log.Warn("服务端密钥已轮换")
		return nil
	},
}
