// README: Route directory backed by PostgreSQL (routes + route_stops tables).
package route

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trackmybus/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, id types.ID) (Route, error) {
	r := Route{ID: id}
	err := s.db.QueryRow(ctx, `SELECT name FROM routes WHERE id = $1`, string(id)).Scan(&r.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return Route{}, ErrNotFound
	}
	if err != nil {
		return Route{}, fmt.Errorf("loading route %s: %w", id, err)
	}

	rows, err := s.db.Query(ctx, `
        SELECT stop_id, name, lat, lng
        FROM route_stops
        WHERE route_id = $1
        ORDER BY seq`, string(id),
	)
	if err != nil {
		return Route{}, fmt.Errorf("loading stops for route %s: %w", id, err)
	}
	defer rows.Close()

	r.Stops = []Stop{}
	for rows.Next() {
		var st Stop
		if err := rows.Scan(&st.ID, &st.Name, &st.Position.Lat, &st.Position.Lng); err != nil {
			return Route{}, err
		}
		r.Stops = append(r.Stops, st)
	}
	if err := rows.Err(); err != nil {
		return Route{}, err
	}
	return r, nil
}

// Put replaces a route and its stops in one transaction. Used to seed the
// directory from a route file.
func (s *Store) Put(ctx context.Context, r Route) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
            INSERT INTO routes (id, name) VALUES ($1, $2)
            ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
			string(r.ID), r.Name,
		); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM route_stops WHERE route_id = $1`, string(r.ID)); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for i, st := range r.Stops {
			batch.Queue(`
                INSERT INTO route_stops (route_id, seq, stop_id, name, lat, lng)
                VALUES ($1, $2, $3, $4, $5, $6)`,
				string(r.ID), i, st.ID, st.Name, st.Position.Lat, st.Position.Lng,
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}
