package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/ticketing-system/internal/model"
)

const buyerColumns = `id, name, email, phone, created_at`

// BuyerRepo provides access to the buyers table.
type BuyerRepo struct {
	db *sql.DB
}

// NewBuyerRepo returns a BuyerRepo bound to db.
func NewBuyerRepo(db *sql.DB) *BuyerRepo { return &BuyerRepo{db: db} }

// errBuyerNotFound is internal: callers only ever see upserted buyers.
var errBuyerNotFound = errors.New("buyer not found")

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func scanBuyer(s rowScanner) (model.Buyer, error) {
	var b model.Buyer
	if err := s.Scan(&b.ID, &b.Name, &b.Email, &b.Phone, &b.CreatedAt); err != nil {
		return model.Buyer{}, err
	}
	b.CreatedAt = b.CreatedAt.UTC()
	return b, nil
}

// GetByEmailTx fetches a buyer by normalized email.
func (r *BuyerRepo) GetByEmailTx(ctx context.Context, tx *sql.Tx, email string) (model.Buyer, error) {
	b, err := scanBuyer(tx.QueryRowContext(ctx,
		`SELECT `+buyerColumns+` FROM buyers WHERE email = ? LIMIT 1`,
		normalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Buyer{}, errBuyerNotFound
	}
	if err != nil {
		return model.Buyer{}, storeErr("get buyer", err)
	}
	return b, nil
}

// UpsertTx returns the buyer registered under d.Email, creating it when
// missing.  Existing records are reused as is.  When a concurrent
// transaction inserts the same email first, UpsertTx returns ErrDuplicate:
// under snapshot isolation the winner's row is invisible to tx, so the
// caller has to retry in a fresh transaction.
func (r *BuyerRepo) UpsertTx(ctx context.Context, tx *sql.Tx, d model.BuyerDetails, now time.Time) (model.Buyer, error) {
	b, err := r.GetByEmailTx(ctx, tx, d.Email)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, errBuyerNotFound) {
		return model.Buyer{}, err
	}

	b = model.Buyer{
		Name:      strings.TrimSpace(d.Name),
		Email:     normalizeEmail(d.Email),
		Phone:     strings.TrimSpace(d.Phone),
		CreatedAt: dbTime(now),
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO buyers (name, email, phone, created_at) VALUES (?, ?, ?, ?)`,
		b.Name, b.Email, b.Phone, b.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return model.Buyer{}, ErrDuplicate
		}
		return model.Buyer{}, storeErr("insert buyer", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Buyer{}, storeErr("insert buyer", err)
	}
	b.ID = uint64(id)
	return b, nil
}
