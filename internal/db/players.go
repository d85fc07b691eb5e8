package db

import (
	"fmt"
	"time"
)

type PlayerRecord struct {
	ID       string
	RoomID   string
	Name     string
	Role     string
	JoinedAt time.Time
	LeftAt   *time.Time
}

func (d *DB) AddPlayer(p PlayerRecord) error {
	_, err := d.conn.Exec(`
		INSERT INTO room_players (id, room_id, user_name, role, joined_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET user_name = $3, role = $4
	`, p.ID, p.RoomID, p.Name, p.Role, p.JoinedAt)
	if err != nil {
		return fmt.Errorf("adding player: %w", err)
	}
	return nil
}

func (d *DB) MarkPlayerLeft(id string) error {
	_, err := d.conn.Exec(`
		UPDATE room_players SET left_at = now() WHERE id = $1 AND left_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("marking player left: %w", err)
	}
	return nil
}

// RoomPlayers lists a room's players in join order.
func (d *DB) RoomPlayers(roomID string) ([]PlayerRecord, error) {
	rows, err := d.conn.Query(`
		SELECT id, room_id, user_name, role, joined_at, left_at
		FROM room_players WHERE room_id = $1
		ORDER BY joined_at, id
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("listing room players: %w", err)
	}
	defer rows.Close()

	var out []PlayerRecord
	for rows.Next() {
		var p PlayerRecord
		if err := rows.Scan(&p.ID, &p.RoomID, &p.Name, &p.Role, &p.JoinedAt, &p.LeftAt); err != nil {
			return nil, fmt.Errorf("scanning room player: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
