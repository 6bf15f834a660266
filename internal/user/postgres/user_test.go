package postgres_test

import (
	"context"
	"errors"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/frahmantamala/payapp/internal"
	authPostgres "github.com/frahmantamala/payapp/internal/auth/postgres"
	"github.com/frahmantamala/payapp/internal/core/database"
	"github.com/frahmantamala/payapp/internal/user"
	userPostgres "github.com/frahmantamala/payapp/internal/user/postgres"
)

func TestUserPostgres(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "User Postgres Suite")
}

var _ = Describe("User Repository", func() {
	var (
		ctx  context.Context
		repo *userPostgres.Repository
		auth *authPostgres.Repository
	)

	BeforeEach(func() {
		ctx = context.Background()
		db, err := database.OpenInMemory()
		Expect(err).NotTo(HaveOccurred())
		repo = userPostgres.NewRepository(db)
		auth = authPostgres.NewRepository(db)
	})

	newUser := func(username, email string, active bool) *user.User {
		return &user.User{Username: username, Email: email, PasswordHash: "hash", Currency: "EUR", IsActive: active}
	}

	It("creates and loads users", func() {
		// Given
		u := newUser("alice", "alice@example.com", true)

		// When
		Expect(repo.Create(ctx, u)).To(Succeed())

		// Then
		Expect(u.ID).To(BeNumerically(">", 0))
		byName, err := repo.GetByUsername(ctx, "alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(byName.ID).To(Equal(u.ID))
		Expect(byName.Currency).To(Equal("EUR"))
	})

	It("maps unique violations to UserExists", func() {
		Expect(repo.Create(ctx, newUser("alice", "alice@example.com", true))).To(Succeed())

		err := repo.Create(ctx, newUser("alice2", "alice@example.com", true))
		Expect(errors.Is(err, apperrors.ErrUserExists)).To(BeTrue())
	})

	It("reports missing users", func() {
		_, err := repo.GetByID(ctx, 404)
		Expect(errors.Is(err, apperrors.ErrUserNotFound)).To(BeTrue())
	})

	Describe("auth queries", func() {
		It("finds credentials by username or email", func() {
			u := newUser("alice", "alice@example.com", true)
			Expect(repo.Create(ctx, u)).To(Succeed())

			byName, err := auth.GetCredentials(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			byEmail, err := auth.GetCredentials(ctx, "alice@example.com")
			Expect(err).NotTo(HaveOccurred())

			Expect(byName.UserID).To(Equal(u.ID))
			Expect(byEmail.UserID).To(Equal(u.ID))
			Expect(byName.PasswordHash).To(Equal("hash"))
		})

		It("refuses principals of inactive users", func() {
			u := newUser("bob", "bob@example.com", false)
			Expect(repo.Create(ctx, u)).To(Succeed())

			_, err := auth.GetPrincipal(ctx, u.ID)
			Expect(errors.Is(err, apperrors.ErrUserInactive)).To(BeTrue())
		})
	})
})
