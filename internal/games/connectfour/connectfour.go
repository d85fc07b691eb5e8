// Package connectfour is the four-in-a-row reference game: two players drop
// discs into a 6x7 grid until one connects four or the grid fills.
package connectfour

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand/v2"
	"roomsync/internal/broadcast"
	"roomsync/internal/games"
)

const (
	Type = "connect_four"

	Rows    = 6
	Columns = 7

	Empty   = 0
	Player1 = 1
	Player2 = 2
)

var metadata = games.Metadata{
	DisplayName: "Connect Four",
	Description: "Two players take turns dropping discs into a vertical grid of seven columns and six rows. " +
		"A disc falls to the lowest free cell of its column. The first to line up four discs wins.",
	Instructions: "1. Players alternate turns; the first mover is picked at random.\n" +
		"2. On your turn, pick a column that is not full.\n" +
		"3. Four of your discs in a row horizontally, vertically or diagonally wins.\n" +
		"4. If the grid fills with no line of four the game is a draw.",
	Tags: []string{"abstract", "board", "strategy", "two-player"},
}

var spec = games.PlayerSpec{Min: 2, Max: 2}

// State is broadcast in full after every change. Grid rows are indexed from
// the top; WinningPositions holds [row, column] pairs. Once Status is win,
// CurrentPlayer is the winning seat.
type State struct {
	games.State
	Grid             [Rows][Columns]int `json:"grid"`
	CurrentPlayer    int                `json:"current_player"`
	WinningPositions [][2]int           `json:"winning_positions"`
}

// ActionData is the payload of a disc drop. Player is optional; when present
// it must match the sender's seat.
type ActionData struct {
	Player *int `json:"player,omitempty"`
	Column *int `json:"column"`
}

// InitData is sent privately to each player when the game starts.
type InitData struct {
	Player int `json:"player"`
}

type Game struct {
	games.Base[*State]
	firstMover func() int
	seats      map[string]int // fixed at start, cleared by reset
}

type Option func(*Game)

// WithFirstMover overrides the random choice of who moves first.
func WithFirstMover(fn func() int) Option {
	return func(g *Game) { g.firstMover = fn }
}

func New(roomID string, log games.Appender, opts ...Option) *Game {
	g := &Game{
		Base:       games.NewBase(roomID, log, spec, &State{State: games.State{Status: games.NotStarted}}),
		firstMover: func() int { return rand.IntN(2) + Player1 },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CatalogEntry registers the game with a games.Catalog.
func CatalogEntry() games.Entry {
	return games.Entry{
		Type:     Type,
		Metadata: metadata,
		Spec:     spec,
		New: func(roomID string, log games.Appender) games.Game {
			return New(roomID, log)
		},
	}
}

var _ games.Game = (*Game)(nil)

func (g *Game) Metadata() games.Metadata {
	return metadata
}

func (g *Game) Handle(ctx context.Context, cmd games.Command) error {
	switch c := cmd.(type) {
	case games.Start:
		return g.start(ctx, c)
	case games.Reset:
		return g.reset(ctx, c)
	case games.Action:
		return g.drop(ctx, c)
	default:
		return games.Errorf(games.UnknownAction, "Event type %s is not handled by the game.", cmd.EventType())
	}
}

func (g *Game) start(ctx context.Context, cmd games.Start) error {
	if !g.State.Status.CanBeStarted() {
		return games.Errorf(games.StateIncompatibility, "Game has already started.")
	}
	players := g.CurrentPlayers()
	if len(players) < spec.Min {
		return games.Errorf(games.WrongPlayerCount, "Not enough players to start the game.")
	}
	if len(players) > spec.Max {
		return games.Errorf(games.WrongPlayerCount, "Too many players to start the game.")
	}

	if err := g.Accept(ctx, cmd, nil); err != nil {
		return err
	}
	g.seats = make(map[string]int, len(players))
	for _, p := range players {
		g.seats[p.Identity] = g.Seat(p.Identity)
	}
	g.State.Status = games.Ongoing
	g.State.CurrentPlayer = g.firstMover()
	if err := g.BroadcastState(ctx, cmd.ActorID); err != nil {
		return err
	}

	for _, p := range players {
		err := g.SendPrivate(ctx, cmd.ActorID, p.Identity, InitData{Player: g.seats[p.Identity]})
		if errors.Is(err, broadcast.ErrUnknownTarget) {
			// stays in the log; the player's next snapshot carries it
			slog.Warn("player not connected for init", "component", "connectfour",
				"room_id", g.RoomID, "player_id", p.Identity)
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (g *Game) reset(ctx context.Context, cmd games.Reset) error {
	if !g.State.Status.Finished() {
		return games.Errorf(games.StateIncompatibility, "Game can only be reset once it is over.")
	}
	if err := g.Accept(ctx, cmd, nil); err != nil {
		return err
	}
	g.seats = nil
	g.State.Grid = [Rows][Columns]int{}
	g.State.CurrentPlayer = 0
	g.State.WinningPositions = nil
	g.State.Status = games.NotStarted
	g.State.CanStart = len(g.CurrentPlayers()) >= spec.Min
	return g.BroadcastState(ctx, cmd.ActorID)
}

// SetPlayerStatus records a roster change. Seats stay fixed for the round;
// a seated player leaving an ongoing round forfeits it to the other seat.
func (g *Game) SetPlayerStatus(ctx context.Context, identity string, status games.PlayerStatus) error {
	if err := g.Base.SetPlayerStatus(ctx, identity, status); err != nil {
		return err
	}
	seat, seated := g.seats[identity]
	if status != games.PlayerLeft || !seated || !g.State.Status.AcceptsPlayerActions() {
		return nil
	}
	g.State.Status = games.Win
	g.State.CurrentPlayer = seat%2 + 1
	g.State.WinningPositions = nil
	slog.Info("round forfeited", "component", "connectfour",
		"room_id", g.RoomID, "player_id", identity, "seat", seat)
	return g.BroadcastState(ctx, identity)
}

// ParseAction validates the structure of a drop payload.
func ParseAction(raw json.RawMessage) (ActionData, error) {
	var data ActionData
	if len(raw) == 0 {
		return data, games.Errorf(games.InvalidAction, "Missing action payload.")
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return data, games.Errorf(games.InvalidAction, "Malformed action payload: %v", err)
	}
	if data.Column == nil {
		return data, games.Errorf(games.InvalidAction, "Field column is required.")
	}
	if *data.Column < 0 || *data.Column >= Columns {
		return data, games.Errorf(games.InvalidAction, "Column must be between 0 and %d.", Columns-1)
	}
	if data.Player != nil && (*data.Player < Player1 || *data.Player > Player2) {
		return data, games.Errorf(games.InvalidAction, "Player must be %d or %d.", Player1, Player2)
	}
	return data, nil
}

func (g *Game) drop(ctx context.Context, cmd games.Action) error {
	data, err := ParseAction(cmd.Data)
	if err != nil {
		return err
	}
	if !g.State.Status.AcceptsPlayerActions() {
		return games.Errorf(games.StateIncompatibility, "Game is not ongoing, cannot perform actions.")
	}

	seat := g.seats[cmd.ActorID]
	if seat == 0 || (data.Player != nil && *data.Player != seat) {
		return games.Errorf(games.WrongPlayer, "You are not playing this seat.")
	}
	if seat != g.State.CurrentPlayer {
		return games.Errorf(games.WrongPlayer, "Please wait for your turn.")
	}

	column := *data.Column
	height := columnHeight(&g.State.Grid, column)
	if height >= Rows {
		return games.Errorf(games.ForbiddenAction, "Column %d is full, cannot drop disc there.", column)
	}

	if err := g.Accept(ctx, cmd, ActionData{Player: &seat, Column: &column}); err != nil {
		return err
	}
	g.State.Grid[Rows-1-height][column] = seat

	if won, line := findLine(&g.State.Grid, seat); won {
		g.State.Status = games.Win
		g.State.WinningPositions = line
	} else if full(&g.State.Grid) {
		g.State.Status = games.Draw
	} else {
		g.State.CurrentPlayer = g.State.CurrentPlayer%2 + 1
	}

	return g.BroadcastState(ctx, cmd.ActorID)
}

// columnHeight counts the occupied cells of column, filled from the bottom.
func columnHeight(grid *[Rows][Columns]int, column int) int {
	for row := Rows - 1; row >= 0; row-- {
		if grid[row][column] == Empty {
			return Rows - 1 - row
		}
	}
	return Rows
}

var directions = [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}

// findLine scans from the top-left for the first run of four cells owned by
// player, returning the cells in traversal order.
func findLine(grid *[Rows][Columns]int, player int) (bool, [][2]int) {
	for row := 0; row < Rows; row++ {
		for col := 0; col < Columns; col++ {
			if grid[row][col] != player {
				continue
			}
			for _, d := range directions {
				line := make([][2]int, 0, 4)
				r, c := row, col
				for r >= 0 && r < Rows && c >= 0 && c < Columns && grid[r][c] == player {
					line = append(line, [2]int{r, c})
					if len(line) == 4 {
						return true, line
					}
					r += d[0]
					c += d[1]
				}
			}
		}
	}
	return false, nil
}

func full(grid *[Rows][Columns]int) bool {
	for _, row := range grid {
		for _, cell := range row {
			if cell == Empty {
				return false
			}
		}
	}
	return true
}
