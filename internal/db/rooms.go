package db

import (
	"fmt"
	"time"
)

type RoomRecord struct {
	ID        string
	Code      string
	GameType  string
	CreatedAt time.Time
	ClosedAt  *time.Time
}

func (d *DB) UpsertRoom(r RoomRecord) error {
	_, err := d.conn.Exec(`
		INSERT INTO rooms (id, code, game_type, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET code = $2, game_type = $3
	`, r.ID, r.Code, r.GameType, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("upserting room: %w", err)
	}
	return nil
}

func (d *DB) CloseRoom(id string) error {
	_, err := d.conn.Exec(`
		UPDATE rooms SET closed_at = now() WHERE id = $1 AND closed_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("closing room: %w", err)
	}
	return nil
}

func (d *DB) DeleteRoom(id string) error {
	_, err := d.conn.Exec(`DELETE FROM rooms WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting room: %w", err)
	}
	return nil
}

func (d *DB) GetRoom(id string) (*RoomRecord, error) {
	var r RoomRecord
	err := d.conn.QueryRow(`
		SELECT id, code, game_type, created_at, closed_at FROM rooms WHERE id = $1
	`, id).Scan(&r.ID, &r.Code, &r.GameType, &r.CreatedAt, &r.ClosedAt)
	if err != nil {
		return nil, fmt.Errorf("getting room: %w", err)
	}
	return &r, nil
}
