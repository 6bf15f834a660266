package postgres_test

import (
	"context"
	"errors"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "github.com/frahmantamala/payapp/internal"
	"github.com/frahmantamala/payapp/internal/account"
	accountPostgres "github.com/frahmantamala/payapp/internal/account/postgres"
	"github.com/frahmantamala/payapp/internal/core/database"
	userDatamodel "github.com/frahmantamala/payapp/internal/core/datamodel/user"
	"github.com/frahmantamala/payapp/internal/core/money"
)

func TestAccountPostgres(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Account Postgres Suite")
}

var _ = Describe("Account Repository", func() {
	var (
		ctx     context.Context
		db      *gorm.DB
		repo    *accountPostgres.Repository
		opening = decimal.RequireFromString("750.00")
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		db, err = database.OpenInMemory()
		Expect(err).NotTo(HaveOccurred())
		repo = accountPostgres.NewRepository(db)

		Expect(db.Create(&userDatamodel.User{
			ID: 1, Username: "alice", Email: "alice@example.com", PasswordHash: "x", Currency: "GBP", IsActive: true,
		}).Error).To(Succeed())
	})

	Describe("GetOrCreate", func() {
		It("opens the account with the opening balance once", func() {
			// Given
			first, err := repo.GetOrCreate(ctx, 1, opening)
			Expect(err).NotTo(HaveOccurred())

			// When
			second, err := repo.GetOrCreate(ctx, 1, decimal.NewFromInt(5))
			Expect(err).NotTo(HaveOccurred())

			// Then
			Expect(second.ID).To(Equal(first.ID))
			Expect(second.Balance.Equal(opening)).To(BeTrue())

			var count int64
			Expect(db.Table("accounts").Count(&count).Error).To(Succeed())
			Expect(count).To(Equal(int64(1)))
		})
	})

	Describe("GetByUserID", func() {
		It("includes the owner's profile currency", func() {
			_, err := repo.GetOrCreate(ctx, 1, opening)
			Expect(err).NotTo(HaveOccurred())

			acct, err := repo.GetByUserID(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(acct.Currency).To(Equal("GBP"))
		})

		It("reports missing accounts", func() {
			_, err := repo.GetByUserID(ctx, 42)
			Expect(errors.Is(err, apperrors.ErrAccountNotFound)).To(BeTrue())
		})
	})

	Describe("ApplyBalance", func() {
		It("writes the balance and bumps the version", func() {
			// Given
			_, err := repo.GetOrCreate(ctx, 1, opening)
			Expect(err).NotTo(HaveOccurred())

			err = db.Transaction(func(tx *gorm.DB) error {
				txRepo := repo.WithTx(tx)
				acct, err := txRepo.LockForUpdate(ctx, 1)
				if err != nil {
					return err
				}
				// When
				return txRepo.ApplyBalance(ctx, acct, decimal.RequireFromString("700.10"))
			})

			// Then
			Expect(err).NotTo(HaveOccurred())
			acct, err := repo.GetByUserID(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(acct.Balance.StringFixed(2)).To(Equal("700.10"))
			Expect(acct.Version).To(Equal(int64(1)))
		})

		It("rejects a stale version", func() {
			// Given
			stale, err := repo.GetOrCreate(ctx, 1, opening)
			Expect(err).NotTo(HaveOccurred())
			fresh, err := repo.LockForUpdate(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.ApplyBalance(ctx, fresh, decimal.NewFromInt(10))).To(Succeed())

			// When
			err = repo.ApplyBalance(ctx, stale, decimal.NewFromInt(20))

			// Then
			Expect(errors.Is(err, account.ErrConcurrentUpdate)).To(BeTrue())
			acct, _ := repo.GetByUserID(ctx, 1)
			Expect(acct.Balance.Equal(decimal.NewFromInt(10))).To(BeTrue())
		})

		It("never writes a negative balance", func() {
			acct, err := repo.GetOrCreate(ctx, 1, opening)
			Expect(err).NotTo(HaveOccurred())

			err = repo.ApplyBalance(ctx, acct, decimal.NewFromInt(-1))
			Expect(errors.Is(err, apperrors.ErrInsufficientFunds)).To(BeTrue())
		})

		It("refuses balances beyond the column limit", func() {
			acct, err := repo.GetOrCreate(ctx, 1, opening)
			Expect(err).NotTo(HaveOccurred())

			err = repo.ApplyBalance(ctx, acct, money.MaxAmount.Add(decimal.RequireFromString("0.01")))

			Expect(errors.Is(err, apperrors.ErrBalanceLimitExceeded)).To(BeTrue())
			Expect(acct.Version).To(Equal(int64(1)))
			Expect(repo.ApplyBalance(ctx, acct, money.MaxAmount)).To(Succeed())
		})
	})
})
