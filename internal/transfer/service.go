package transfer

import (
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/payapp/internal"
	"github.com/frahmantamala/payapp/internal/account"
	"github.com/frahmantamala/payapp/internal/conversion"
	"github.com/frahmantamala/payapp/internal/core/events"
	"github.com/frahmantamala/payapp/internal/core/money"
	"github.com/frahmantamala/payapp/internal/metrics"
)

type Options struct {
	OpeningBalance decimal.Decimal
	// Attempts bounds how often an atomic unit is re-run after losing a balance race.
	Attempts int
}

type Service struct {
	repo      RepositoryAPI
	directory Directory
	converter Converter
	publisher events.Publisher
	opts      Options
	logger    *slog.Logger
}

func NewService(repo RepositoryAPI, directory Directory, converter Converter, publisher events.Publisher, opts Options, logger *slog.Logger) *Service {
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		directory: directory,
		converter: converter,
		publisher: publisher,
		opts:      opts,
		logger:    logger,
	}
}

// Transfer moves money between two accounts in one atomic unit. Validation and the
// conversion lookup happen before anything is written; the sender's balance is checked
// against the original amount under lock. Notifications are published after commit.
func (s *Service) Transfer(ctx context.Context, cmd TransferCommand) (*Transaction, error) {
	if err := s.validate(cmd); err != nil {
		metrics.TransfersTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	conv, err := s.convert(ctx, cmd.SenderCurrency, cmd.RecipientCurrency, cmd.Amount)
	if err != nil {
		metrics.TransfersTotal.WithLabelValues("conversion_unavailable").Inc()
		return nil, err
	}

	posting := Posting{
		SenderID:       cmd.SenderID,
		RecipientID:    cmd.RecipientID,
		Debit:          cmd.Amount,
		Currency:       cmd.SenderCurrency.String(),
		Credit:         conv.Converted,
		OpeningBalance: s.opts.OpeningBalance,
	}
	if !conv.IsIdentity() {
		posting.Conversion = &conv
	}

	txn, err := s.post(ctx, posting)
	if err != nil {
		return nil, err
	}

	s.publishCompleted(ctx, txn)
	return txn, nil
}

// Send resolves the recipient by username and transfers in the profile currencies.
func (s *Service) Send(ctx context.Context, senderID int64, dto SendDTO) (*Transaction, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	sender, recipient, err := s.resolve(ctx, senderID, dto.Recipient)
	if err != nil {
		return nil, err
	}

	return s.Transfer(ctx, TransferCommand{
		SenderID:          sender.ID,
		RecipientID:       recipient.ID,
		Amount:            dto.Amount,
		SenderCurrency:    sender.Currency,
		RecipientCurrency: recipient.Currency,
	})
}

// RequestFunds records a PENDING transfer from payer to requester. Nothing moves
// until the payer accepts it.
func (s *Service) RequestFunds(ctx context.Context, requesterID int64, dto RequestFundsDTO) (*Transaction, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	requester, payer, err := s.resolve(ctx, requesterID, dto.Payer)
	if err != nil {
		return nil, err
	}

	if err := money.ValidateAmount(dto.Amount, payer.Currency); err != nil {
		return nil, err
	}

	txn := &Transaction{
		SenderID:    payer.ID,
		RecipientID: requester.ID,
		Amount:      dto.Amount,
		Currency:    payer.Currency.String(),
		Status:      StatusPending,
	}
	if err := s.repo.CreatePending(ctx, txn); err != nil {
		s.logger.Error("failed to create money request", "error", err, "requester_id", requesterID)
		return nil, err
	}

	s.logger.Info("money requested",
		"transaction_id", txn.ID,
		"requester_id", requester.ID,
		"payer_id", payer.ID,
		"amount", txn.Amount.String())
	return txn, nil
}

// AcceptRequest lets the payer complete a PENDING request through the same atomic
// unit as a direct transfer.
func (s *Service) AcceptRequest(ctx context.Context, payerID, txnID int64) (*Transaction, error) {
	pending, err := s.repo.GetByID(ctx, txnID)
	if err != nil {
		return nil, err
	}
	if pending.SenderID != payerID {
		return nil, errors.ErrTransactionNotFound
	}
	if pending.Status != StatusPending {
		return nil, errors.ErrInvalidTransferStatus
	}

	recipient, err := s.directory.PartyByID(ctx, pending.RecipientID)
	if err != nil {
		return nil, err
	}

	senderCurrency := money.Currency(pending.Currency)
	conv, err := s.convert(ctx, senderCurrency, recipient.Currency, pending.Amount)
	if err != nil {
		return nil, err
	}

	posting := Posting{
		SenderID:       pending.SenderID,
		RecipientID:    pending.RecipientID,
		Debit:          pending.Amount,
		Currency:       pending.Currency,
		Credit:         conv.Converted,
		OpeningBalance: s.opts.OpeningBalance,
		PendingID:      pending.ID,
	}
	if !conv.IsIdentity() {
		posting.Conversion = &conv
	}

	txn, err := s.post(ctx, posting)
	if err != nil {
		return nil, err
	}

	s.publishCompleted(ctx, txn)
	return txn, nil
}

func (s *Service) DeclineRequest(ctx context.Context, payerID, txnID int64) (*Transaction, error) {
	txn, err := s.repo.Decline(ctx, txnID, payerID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("money request declined", "transaction_id", txnID, "payer_id", payerID)
	return txn, nil
}

// Refund reverses a COMPLETED transfer: the recipient gives back what they were
// credited and the sender gets the original amount back.
func (s *Service) Refund(ctx context.Context, recipientID, txnID int64) (*Transaction, error) {
	var (
		txn *Transaction
		err error
	)
	for attempt := 1; attempt <= s.opts.Attempts; attempt++ {
		txn, err = s.repo.Refund(ctx, txnID, recipientID, s.opts.OpeningBalance)
		if !goerrors.Is(err, account.ErrConcurrentUpdate) {
			break
		}
		metrics.TransferConflicts.Inc()
	}
	if err != nil {
		if goerrors.Is(err, account.ErrConcurrentUpdate) {
			return nil, errors.NewInternalError("refund could not be applied, try again", err)
		}
		return nil, err
	}

	metrics.TransfersTotal.WithLabelValues("refunded").Inc()
	s.logger.Info("transfer refunded", "transaction_id", txn.ID, "recipient_id", recipientID)

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, events.NewTransferRefundedEvent(txn.ID, txn.SenderID, txn.RecipientID)); err != nil {
			s.logger.Warn("failed to publish refund event", "transaction_id", txn.ID, "error", err)
		}
	}
	return txn, nil
}

// Get returns a transaction the user took part in.
func (s *Service) Get(ctx context.Context, userID, txnID int64) (*Transaction, error) {
	txn, err := s.repo.GetByID(ctx, txnID)
	if err != nil {
		return nil, err
	}
	if txn.SenderID != userID && txn.RecipientID != userID {
		return nil, errors.ErrTransactionNotFound
	}
	return txn, nil
}

// History lists transactions sent or received by the user, newest first.
func (s *Service) History(ctx context.Context, userID int64, limit, offset int) ([]*Transaction, error) {
	txns, err := s.repo.ListForUser(ctx, userID, limit, offset)
	if err != nil {
		s.logger.Error("failed to list transactions", "error", err, "user_id", userID)
		return nil, err
	}
	return txns, nil
}

func (s *Service) validate(cmd TransferCommand) error {
	if err := cmd.SenderCurrency.Validate(); err != nil {
		return err
	}
	if err := cmd.RecipientCurrency.Validate(); err != nil {
		return err
	}
	if err := money.ValidateAmount(cmd.Amount, cmd.SenderCurrency); err != nil {
		return err
	}
	if cmd.SenderID == cmd.RecipientID {
		return errors.ErrSameAccount
	}
	return nil
}

// convert consults the oracle; any failure other than bad input is ConversionUnavailable.
func (s *Service) convert(ctx context.Context, from, to money.Currency, amount decimal.Decimal) (conversion.Conversion, error) {
	conv, err := s.converter.Convert(ctx, from, to, amount)
	if err == nil {
		if err := money.ValidateAmount(conv.Converted, to); err != nil {
			return conversion.Conversion{}, err
		}
		return conv, nil
	}
	if goerrors.Is(err, errors.ErrInvalidAmount) || goerrors.Is(err, errors.ErrInvalidCurrency) {
		return conversion.Conversion{}, err
	}
	if goerrors.Is(err, errors.ErrConversionUnavailable) {
		return conversion.Conversion{}, err
	}
	return conversion.Conversion{}, errors.ErrConversionUnavailable.WithCause(err)
}

func (s *Service) post(ctx context.Context, p Posting) (*Transaction, error) {
	var (
		txn *Transaction
		err error
	)
	for attempt := 1; attempt <= s.opts.Attempts; attempt++ {
		txn, err = s.repo.ExecutePosting(ctx, p)
		if !goerrors.Is(err, account.ErrConcurrentUpdate) {
			break
		}
		metrics.TransferConflicts.Inc()
		s.logger.Info("transfer lost a balance race, retrying",
			"sender_id", p.SenderID,
			"recipient_id", p.RecipientID,
			"attempt", attempt)
	}

	switch {
	case err == nil:
	case goerrors.Is(err, errors.ErrInsufficientFunds):
		metrics.TransfersTotal.WithLabelValues("insufficient_funds").Inc()
		return nil, err
	case goerrors.Is(err, account.ErrConcurrentUpdate):
		metrics.TransfersTotal.WithLabelValues("failed").Inc()
		return nil, errors.NewInternalError("transfer could not be applied, try again", err)
	default:
		metrics.TransfersTotal.WithLabelValues("failed").Inc()
		s.logger.Error("transfer failed", "error", err, "sender_id", p.SenderID, "recipient_id", p.RecipientID)
		return nil, err
	}

	metrics.TransfersTotal.WithLabelValues("completed").Inc()
	s.logger.Info("transfer completed",
		"transaction_id", txn.ID,
		"sender_id", txn.SenderID,
		"recipient_id", txn.RecipientID,
		"amount", txn.Amount.String(),
		"currency", txn.Currency,
		"converted", txn.IsConverted())
	return txn, nil
}

func (s *Service) resolve(ctx context.Context, selfID int64, otherUsername string) (*Party, *Party, error) {
	self, err := s.directory.PartyByID(ctx, selfID)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve current user: %w", err)
	}
	other, err := s.directory.PartyByUsername(ctx, otherUsername)
	if err != nil {
		return nil, nil, err
	}
	if self.ID == other.ID {
		return nil, nil, errors.ErrSameAccount
	}
	return self, other, nil
}

// publishCompleted hands the transfer to the notification pipeline. It never fails
// the transfer: the ledger has already committed.
func (s *Service) publishCompleted(ctx context.Context, txn *Transaction) {
	if s.publisher == nil {
		return
	}

	sender := s.partyOrID(ctx, txn.SenderID)
	recipient := s.partyOrID(ctx, txn.RecipientID)

	var converted *decimal.Decimal
	if txn.IsConverted() {
		converted = txn.ConvertedAmount
	}

	event := events.NewTransferCompletedEvent(txn.ID, sender, recipient, txn.Amount, txn.Currency, converted, txn.ConvertedCurrency)
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish transfer event", "transaction_id", txn.ID, "error", err)
	}
}

func (s *Service) partyOrID(ctx context.Context, id int64) events.Party {
	p, err := s.directory.PartyByID(ctx, id)
	if err != nil {
		s.logger.Warn("failed to resolve party for notification", "user_id", id, "error", err)
		return events.Party{UserID: id}
	}
	return events.Party{UserID: p.ID, Username: p.Username, Email: p.Email}
}
