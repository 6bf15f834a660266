package database_test

import (
	"errors"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/frahmantamala/payapp/internal"
	"github.com/frahmantamala/payapp/internal/core/database"
	accountDatamodel "github.com/frahmantamala/payapp/internal/core/datamodel/account"
	userDatamodel "github.com/frahmantamala/payapp/internal/core/datamodel/user"
)

func TestDatabase(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Database Suite")
}

var _ = Describe("Database", func() {
	It("rejects unknown drivers", func() {
		_, err := database.Open(internal.DatabaseConfig{Driver: "oracle", Source: "x"}, nil)
		Expect(err).To(MatchError(ContainSubstring("unsupported database driver")))
	})

	It("maps drivers to sqlx names", func() {
		Expect(database.DriverNameForSQLX("postgres")).To(Equal("pgx"))
		Expect(database.DriverNameForSQLX("sqlite")).To(Equal("sqlite3"))
		Expect(database.DriverNameForSQLX("mysql")).To(Equal("mysql"))
	})

	Describe("OpenInMemory", func() {
		var db *gorm.DB

		BeforeEach(func() {
			var err error
			db, err = database.OpenInMemory()
			Expect(err).ToNot(HaveOccurred())
		})

		It("creates every table", func() {
			for _, model := range database.Models() {
				Expect(db.Migrator().HasTable(model)).To(BeTrue())
			}
		})

		It("translates unique violations", func() {
			// Given
			u := &userDatamodel.User{Username: "alice", Email: "alice@example.com", PasswordHash: "x", Currency: "GBP", IsActive: true}
			Expect(db.Create(u).Error).To(Succeed())

			// When
			dup := &userDatamodel.User{Username: "alice", Email: "other@example.com", PasswordHash: "x", Currency: "GBP", IsActive: true}
			err := db.Create(dup).Error

			// Then
			Expect(errors.Is(err, gorm.ErrDuplicatedKey)).To(BeTrue())
		})

		It("round-trips decimal balances exactly", func() {
			acct := &accountDatamodel.Account{UserID: 1, Balance: decimal.RequireFromString("0.30")}
			Expect(db.Create(acct).Error).To(Succeed())

			var loaded accountDatamodel.Account
			Expect(db.First(&loaded, acct.ID).Error).To(Succeed())
			Expect(loaded.Balance.Equal(decimal.RequireFromString("0.3"))).To(BeTrue())
		})

		It("shares the pool with sqlx", func() {
			sx, err := database.SQLX(db, internal.DatabaseConfig{Driver: "sqlite"})
			Expect(err).ToNot(HaveOccurred())

			var n int
			Expect(sx.Get(&n, "SELECT COUNT(*) FROM users")).To(Succeed())
			Expect(n).To(Equal(0))
		})
	})
})
