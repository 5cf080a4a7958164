// Package postgres implements the entity store on PostgreSQL. Numeric
// fields wider than 64 bits are persisted as text to avoid driver rounding.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"safeScope/internal/model"
)

// Store provides Postgres persistence for tracked entities.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Position(ctx context.Context, key string) (*model.Position, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT owner, protocol, token_id, pool, token0, token1, tick_lower, tick_upper,
			liquidity, amount0, amount1, amount0_usd, amount1_usd, current_usd, active,
			entry_ts, entry_tx, entry_amount0, entry_amount1, entry_amount0_usd, entry_amount1_usd, entry_usd,
			exit_ts, exit_tx, exit_amount0, exit_amount1, exit_amount0_usd, exit_amount1_usd, exit_usd
		FROM positions
		WHERE position_key = $1
	`, key)

	var (
		p                  model.Position
		tokenID, liquidity string
		amounts            [5]string
		entryTs            int64
		entryTx            string
		entryAmounts       [5]string
		exitTs             *int64
		exitTx             *string
		exitAmounts        [5]*string
	)
	err := row.Scan(
		&p.Owner, &p.Protocol, &tokenID, &p.Pool, &p.Token0, &p.Token1, &p.TickLower, &p.TickUpper,
		&liquidity, &amounts[0], &amounts[1], &amounts[2], &amounts[3], &amounts[4], &p.Active,
		&entryTs, &entryTx, &entryAmounts[0], &entryAmounts[1], &entryAmounts[2], &entryAmounts[3], &entryAmounts[4],
		&exitTs, &exitTx, &exitAmounts[0], &exitAmounts[1], &exitAmounts[2], &exitAmounts[3], &exitAmounts[4],
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load position: %w", err)
	}

	if p.TokenID, err = parseBigInt(tokenID); err != nil {
		return nil, fmt.Errorf("position token_id: %w", err)
	}
	if p.Liquidity, err = parseBigInt(liquidity); err != nil {
		return nil, fmt.Errorf("position liquidity: %w", err)
	}
	decimalFields := []*decimal.Decimal{&p.Amount0, &p.Amount1, &p.Amount0USD, &p.Amount1USD, &p.CurrentUSD}
	for i, field := range decimalFields {
		if *field, err = decimal.NewFromString(amounts[i]); err != nil {
			return nil, fmt.Errorf("position amount column %d: %w", i, err)
		}
	}

	p.Entry = model.Snapshot{Timestamp: uint64(entryTs), TxHash: entryTx}
	entryFields := []*decimal.Decimal{&p.Entry.Amount0, &p.Entry.Amount1, &p.Entry.Amount0USD, &p.Entry.Amount1USD, &p.Entry.AmountUSD}
	for i, field := range entryFields {
		if *field, err = decimal.NewFromString(entryAmounts[i]); err != nil {
			return nil, fmt.Errorf("position entry column %d: %w", i, err)
		}
	}

	if exitTs != nil && exitTx != nil {
		exit := model.Snapshot{Timestamp: uint64(*exitTs), TxHash: *exitTx}
		exitFields := []*decimal.Decimal{&exit.Amount0, &exit.Amount1, &exit.Amount0USD, &exit.Amount1USD, &exit.AmountUSD}
		for i, field := range exitFields {
			if exitAmounts[i] == nil {
				return nil, fmt.Errorf("position exit column %d is null", i)
			}
			if *field, err = decimal.NewFromString(*exitAmounts[i]); err != nil {
				return nil, fmt.Errorf("position exit column %d: %w", i, err)
			}
		}
		p.Exit = &exit
	}

	return &p, nil
}

func (s *Store) SavePosition(ctx context.Context, p *model.Position) error {
	var (
		exitTs      *int64
		exitTx      *string
		exitAmounts [5]*string
	)
	if p.Exit != nil {
		ts := int64(p.Exit.Timestamp)
		exitTs = &ts
		exitTx = &p.Exit.TxHash
		for i, value := range []decimal.Decimal{p.Exit.Amount0, p.Exit.Amount1, p.Exit.Amount0USD, p.Exit.Amount1USD, p.Exit.AmountUSD} {
			text := value.String()
			exitAmounts[i] = &text
		}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO positions (
			position_key, owner, protocol, token_id, pool, token0, token1, tick_lower, tick_upper,
			liquidity, amount0, amount1, amount0_usd, amount1_usd, current_usd, active,
			entry_ts, entry_tx, entry_amount0, entry_amount1, entry_amount0_usd, entry_amount1_usd, entry_usd,
			exit_ts, exit_tx, exit_amount0, exit_amount1, exit_amount0_usd, exit_amount1_usd, exit_usd,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,now(),now())
		ON CONFLICT (position_key)
		DO UPDATE SET
			liquidity = EXCLUDED.liquidity,
			amount0 = EXCLUDED.amount0,
			amount1 = EXCLUDED.amount1,
			amount0_usd = EXCLUDED.amount0_usd,
			amount1_usd = EXCLUDED.amount1_usd,
			current_usd = EXCLUDED.current_usd,
			active = EXCLUDED.active,
			exit_ts = EXCLUDED.exit_ts,
			exit_tx = EXCLUDED.exit_tx,
			exit_amount0 = EXCLUDED.exit_amount0,
			exit_amount1 = EXCLUDED.exit_amount1,
			exit_amount0_usd = EXCLUDED.exit_amount0_usd,
			exit_amount1_usd = EXCLUDED.exit_amount1_usd,
			exit_usd = EXCLUDED.exit_usd,
			updated_at = now()
	`,
		p.Key(), model.CanonicalAddress(p.Owner), string(p.Protocol), p.TokenID.String(),
		model.CanonicalAddress(p.Pool), model.CanonicalAddress(p.Token0), model.CanonicalAddress(p.Token1),
		p.TickLower, p.TickUpper,
		p.Liquidity.String(), p.Amount0.String(), p.Amount1.String(),
		p.Amount0USD.String(), p.Amount1USD.String(), p.CurrentUSD.String(), p.Active,
		int64(p.Entry.Timestamp), p.Entry.TxHash,
		p.Entry.Amount0.String(), p.Entry.Amount1.String(),
		p.Entry.Amount0USD.String(), p.Entry.Amount1USD.String(), p.Entry.AmountUSD.String(),
		exitTs, exitTx, exitAmounts[0], exitAmounts[1], exitAmounts[2], exitAmounts[3], exitAmounts[4],
	)
	if err != nil {
		return fmt.Errorf("save position: %w", err)
	}
	return nil
}

func (s *Store) ActivePositions(ctx context.Context) ([]*model.Position, error) {
	rows, err := s.pool.Query(ctx, `SELECT position_key FROM positions WHERE active ORDER BY position_key`)
	if err != nil {
		return nil, fmt.Errorf("list active positions: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect active positions: %w", err)
	}

	out := make([]*model.Position, 0, len(keys))
	for _, key := range keys {
		position, err := s.Position(ctx, key)
		if err != nil {
			return nil, err
		}
		if position != nil {
			out = append(out, position)
		}
	}
	return out, nil
}

func (s *Store) FundingBalance(ctx context.Context, account string) (*model.FundingBalance, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT account, total_in_usd, total_out_usd, net_usd, first_in_ts, last_change_ts
		FROM funding_balances
		WHERE account = $1
	`, model.CanonicalAddress(account))

	var (
		fb                     model.FundingBalance
		totalIn, totalOut, net string
		firstIn, lastChange    int64
	)
	err := row.Scan(&fb.Account, &totalIn, &totalOut, &net, &firstIn, &lastChange)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load funding balance: %w", err)
	}

	if fb.TotalInUSD, err = decimal.NewFromString(totalIn); err != nil {
		return nil, fmt.Errorf("funding total_in: %w", err)
	}
	if fb.TotalOutUSD, err = decimal.NewFromString(totalOut); err != nil {
		return nil, fmt.Errorf("funding total_out: %w", err)
	}
	if fb.NetUSD, err = decimal.NewFromString(net); err != nil {
		return nil, fmt.Errorf("funding net: %w", err)
	}
	fb.FirstInTs = uint64(firstIn)
	fb.LastChangeTs = uint64(lastChange)
	return &fb, nil
}

func (s *Store) SaveFundingBalance(ctx context.Context, fb *model.FundingBalance) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO funding_balances (
			account, total_in_usd, total_out_usd, net_usd, first_in_ts, last_change_ts, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,now(),now())
		ON CONFLICT (account)
		DO UPDATE SET
			total_in_usd = EXCLUDED.total_in_usd,
			total_out_usd = EXCLUDED.total_out_usd,
			net_usd = EXCLUDED.net_usd,
			last_change_ts = EXCLUDED.last_change_ts,
			updated_at = now()
	`,
		model.CanonicalAddress(fb.Account),
		fb.TotalInUSD.String(), fb.TotalOutUSD.String(), fb.NetUSD.String(),
		int64(fb.FirstInTs), int64(fb.LastChangeTs),
	)
	if err != nil {
		return fmt.Errorf("save funding balance: %w", err)
	}
	return nil
}

func (s *Store) Classification(ctx context.Context, address string) (*model.AddressClassification, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT address, is_contract, checked_at_block
		FROM address_classifications
		WHERE address = $1
	`, model.CanonicalAddress(address))

	var (
		ac        model.AddressClassification
		checkedAt int64
	)
	err := row.Scan(&ac.Address, &ac.IsContract, &checkedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load classification: %w", err)
	}
	ac.CheckedAt = uint64(checkedAt)
	return &ac, nil
}

func (s *Store) SaveClassification(ctx context.Context, ac *model.AddressClassification) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO address_classifications (address, is_contract, checked_at_block, created_at, updated_at)
		VALUES ($1,$2,$3,now(),now())
		ON CONFLICT (address)
		DO UPDATE SET
			is_contract = EXCLUDED.is_contract,
			checked_at_block = EXCLUDED.checked_at_block,
			updated_at = now()
	`, model.CanonicalAddress(ac.Address), ac.IsContract, int64(ac.CheckedAt))
	if err != nil {
		return fmt.Errorf("save classification: %w", err)
	}
	return nil
}

func parseBigInt(text string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(text, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", text)
	}
	return value, nil
}
