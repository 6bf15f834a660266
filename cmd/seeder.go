package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	apperrors "github.com/frahmantamala/payapp/internal"
	"github.com/frahmantamala/payapp/internal/account"
	accountPostgres "github.com/frahmantamala/payapp/internal/account/postgres"
	"github.com/frahmantamala/payapp/internal/core/common/validation"
	"github.com/frahmantamala/payapp/internal/user"
	userPostgres "github.com/frahmantamala/payapp/internal/user/postgres"
	"github.com/frahmantamala/payapp/pkg/logger"
)

type seedUser struct {
	Username string
	Email    string
	Currency string
}

var seedUsers = []seedUser{
	{Username: "alice", Email: "alice@mail.com", Currency: "GBP"},
	{Username: "bob", Email: "bob@mail.com", Currency: "USD"},
	{Username: "carol", Email: "carol@mail.com", Currency: "EUR"},
	{Username: "shop", Email: "shop@mail.com", Currency: "GBP"},
}

const seedPassword = "password123"

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample users and accounts for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		lg := logger.LoggerWrapper()

		db, err := initDB(cfg.Database, lg)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}

		if clearData {
			for _, table := range []string{
				"settlement_transactions", "payment_conversions", "payment_views",
				"payment_requests", "transactions", "accounts", "users",
			} {
				if err := db.Exec("DELETE FROM " + table).Error; err != nil {
					log.Fatalf("failed to clear %s: %v", table, err)
				}
			}
			fmt.Println("Cleared existing data")
		}

		accounts := account.NewService(accountPostgres.NewRepository(db), cfg.Ledger.OpeningBalanceDecimal(), lg)
		users := user.NewService(userPostgres.NewRepository(db), accounts, user.Options{
			SupportedCurrencies: validation.CurrencySet(cfg.Ledger.SupportedCurrencies),
			DefaultCurrency:     cfg.Ledger.DefaultCurrency,
			BCryptCost:          cfg.Security.BCryptCost,
		}, lg)

		ctx := context.Background()
		for _, su := range seedUsers {
			u, err := users.Register(ctx, user.RegisterDTO{
				Username: su.Username,
				Email:    su.Email,
				Password: seedPassword,
				Currency: su.Currency,
			})
			if errors.Is(err, apperrors.ErrUserExists) {
				fmt.Println("user already exists:", su.Username)
				continue
			}
			if err != nil {
				log.Fatalf("failed to seed user %s: %v", su.Username, err)
			}
			fmt.Printf("Seeded user %s (%s) with opening balance %s\n", u.Username, u.Currency, openingBalance(cfg.Ledger.OpeningBalanceDecimal()))
		}

		fmt.Println("Seed complete; every user's password is", seedPassword)
	},
}

func openingBalance(d decimal.Decimal) string {
	return d.StringFixed(2)
}
