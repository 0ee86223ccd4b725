// Package repo persists auction state to PostgreSQL. Each Save* method is a
// single transaction so a command commits in full or not at all, and the
// stored rows are sufficient to rebuild a room after a restart.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/google/uuid"

	"github.com/draftkit/teamauction/internal/models"
)

// ErrNotFound is returned when an auction does not exist.
var ErrNotFound = errors.New("auction not found")

// Repository wraps a PostgreSQL connection pool.
type Repository struct {
	Pool *pgxpool.Pool
}

// New initializes a repository on a new connection pool.
func New(ctx context.Context, connString string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Repository{Pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repository) Close() {
	r.Pool.Close()
}

const auctionColumns = `id, league_id, auctioneer_id, status, settings, participants,
	nomination_order, current_nominator_idx, current_lot_id, current_bid,
	current_high_bidder, bid_end_time, paused_remaining_ms,
	scheduled_at, started_at, completed_at, created_at, updated_at`

// CreateAuction inserts a new auction head plus one row per lot.
func (r *Repository) CreateAuction(ctx context.Context, a *models.Auction, lots []models.TeamLot) error {
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertAuction(ctx, tx, a); err != nil {
		return err
	}
	for i, lot := range lots {
		_, err := tx.Exec(ctx,
			`INSERT INTO auction_lots (auction_id, team_id, position, status) VALUES ($1, $2, $3, $4)`,
			a.ID, lot.TeamID, i, lot.Status)
		if err != nil {
			return fmt.Errorf("failed to insert lot %s: %w", lot.TeamID, err)
		}
	}
	return tx.Commit(ctx)
}

// SaveState upserts the auction head row.
func (r *Repository) SaveState(ctx context.Context, a *models.Auction) error {
	return updateAuction(ctx, r.Pool, a)
}

// SaveNomination writes the head, the nominated lot and the opening bid in
// one transaction.
func (r *Repository) SaveNomination(ctx context.Context, a *models.Auction, lot models.TeamLot, opening models.Bid) error {
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := updateAuction(ctx, tx, a); err != nil {
		return err
	}
	if err := updateLot(ctx, tx, a.ID, lot); err != nil {
		return err
	}
	if err := insertBid(ctx, tx, opening); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SaveBid writes the head and appends the accepted bid in one transaction.
func (r *Repository) SaveBid(ctx context.Context, a *models.Auction, bid models.Bid) error {
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := updateAuction(ctx, tx, a); err != nil {
		return err
	}
	if err := insertBid(ctx, tx, bid); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SaveSale writes the head and the settled lot in one transaction.
func (r *Repository) SaveSale(ctx context.Context, a *models.Auction, lot models.TeamLot) error {
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := updateAuction(ctx, tx, a); err != nil {
		return err
	}
	if err := updateLot(ctx, tx, a.ID, lot); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetAuction loads a single auction head.
func (r *Repository) GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	row := r.Pool.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id)
	a, err := scanAuction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// ListLots returns an auction's lots in their fixed position order.
func (r *Repository) ListLots(ctx context.Context, auctionID uuid.UUID) ([]models.TeamLot, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT team_id, status, owner_id, final_price FROM auction_lots
		 WHERE auction_id = $1 ORDER BY position`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lots: %w", err)
	}
	defer rows.Close()

	var lots []models.TeamLot
	for rows.Next() {
		var lot models.TeamLot
		if err := rows.Scan(&lot.TeamID, &lot.Status, &lot.OwnerID, &lot.FinalPrice); err != nil {
			return nil, fmt.Errorf("failed to scan lot: %w", err)
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

// ListBids returns an auction's full bid ledger in accepted order.
func (r *Repository) ListBids(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT id, auction_id, lot_id, bidder_id, amount, placed_at FROM bids
		 WHERE auction_id = $1 ORDER BY seq`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bids: %w", err)
	}
	defer rows.Close()

	var bids []models.Bid
	for rows.Next() {
		var b models.Bid
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.LotID, &b.BidderID, &b.Amount, &b.PlacedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

// ListInFlight returns every auction that has not reached a terminal status.
func (r *Repository) ListInFlight(ctx context.Context) ([]*models.Auction, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE status NOT IN ($1, $2)`,
		models.AuctionStatusCompleted, models.AuctionStatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to list in-flight auctions: %w", err)
	}
	defer rows.Close()

	var out []*models.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertAuction(ctx context.Context, tx pgx.Tx, a *models.Auction) error {
	settings, participants, order, err := headJSON(a)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO auctions (`+auctionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		a.ID, a.LeagueID, a.AuctioneerID, a.Status, settings, participants,
		order, a.CurrentNominatorIdx, a.CurrentLotID, a.CurrentBid,
		a.CurrentHighBidder, a.BidEndTime, pausedMillis(a),
		a.ScheduledAt, a.StartedAt, a.CompletedAt, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert auction: %w", err)
	}
	return nil
}

func updateAuction(ctx context.Context, q querier, a *models.Auction) error {
	settings, participants, order, err := headJSON(a)
	if err != nil {
		return err
	}
	tag, err := q.Exec(ctx,
		`UPDATE auctions SET
			status = $2, settings = $3, participants = $4, nomination_order = $5,
			current_nominator_idx = $6, current_lot_id = $7, current_bid = $8,
			current_high_bidder = $9, bid_end_time = $10, paused_remaining_ms = $11,
			started_at = $12, completed_at = $13, updated_at = $14
		 WHERE id = $1`,
		a.ID, a.Status, settings, participants, order,
		a.CurrentNominatorIdx, a.CurrentLotID, a.CurrentBid,
		a.CurrentHighBidder, a.BidEndTime, pausedMillis(a),
		a.StartedAt, a.CompletedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update auction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func updateLot(ctx context.Context, q querier, auctionID uuid.UUID, lot models.TeamLot) error {
	tag, err := q.Exec(ctx,
		`UPDATE auction_lots SET status = $3, owner_id = $4, final_price = $5
		 WHERE auction_id = $1 AND team_id = $2`,
		auctionID, lot.TeamID, lot.Status, lot.OwnerID, lot.FinalPrice)
	if err != nil {
		return fmt.Errorf("failed to update lot %s: %w", lot.TeamID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("lot %s not found for auction %s", lot.TeamID, auctionID)
	}
	return nil
}

func insertBid(ctx context.Context, q querier, b models.Bid) error {
	_, err := q.Exec(ctx,
		`INSERT INTO bids (id, auction_id, lot_id, bidder_id, amount, placed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		b.ID, b.AuctionID, b.LotID, b.BidderID, b.Amount, b.PlacedAt)
	if err != nil {
		return fmt.Errorf("failed to insert bid: %w", err)
	}
	return nil
}

func headJSON(a *models.Auction) (settings, participants, order []byte, err error) {
	if settings, err = json.Marshal(a.Settings); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal settings: %w", err)
	}
	if participants, err = json.Marshal(a.Participants); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal participants: %w", err)
	}
	if order, err = json.Marshal(a.NominationOrder); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal nomination order: %w", err)
	}
	return settings, participants, order, nil
}

func pausedMillis(a *models.Auction) *int64 {
	if a.PausedRemaining == nil {
		return nil
	}
	ms := a.PausedRemaining.Milliseconds()
	return &ms
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAuction(row scannable) (*models.Auction, error) {
	var (
		a                             models.Auction
		settings, participants, order []byte
		pausedMS                      *int64
	)
	err := row.Scan(
		&a.ID, &a.LeagueID, &a.AuctioneerID, &a.Status, &settings, &participants,
		&order, &a.CurrentNominatorIdx, &a.CurrentLotID, &a.CurrentBid,
		&a.CurrentHighBidder, &a.BidEndTime, &pausedMS,
		&a.ScheduledAt, &a.StartedAt, &a.CompletedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(settings, &a.Settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	if err := json.Unmarshal(participants, &a.Participants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal participants: %w", err)
	}
	if len(order) > 0 {
		if err := json.Unmarshal(order, &a.NominationOrder); err != nil {
			return nil, fmt.Errorf("failed to unmarshal nomination order: %w", err)
		}
	}
	if pausedMS != nil {
		d := time.Duration(*pausedMS) * time.Millisecond
		a.PausedRemaining = &d
	}
	return &a, nil
}
