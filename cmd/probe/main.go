// Command probe drives one room on a running relay end to end: a host
// creates a room, players join and start the game, every player streams
// gyroscope samples, and the host's ball updates are printed.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/tiltroom/game/service"
)

type options struct {
	URL      string
	Players  int
	Samples  int
	Interval time.Duration
	Timeout  time.Duration
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type peer struct {
	name string
	conn *websocket.Conn
	wait time.Duration
}

func main() {
	cmd := &cli.Command{
		Name:  "probe",
		Usage: "smoke-test a tiltroom relay over WebSocket",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "ws://localhost:3000/ws", Usage: "relay WebSocket URL"},
			&cli.IntFlag{Name: "players", Value: 2, Usage: "players to seat"},
			&cli.IntFlag{Name: "samples", Value: 5, Usage: "gyroscope samples per player"},
			&cli.DurationFlag{Name: "interval", Value: 100 * time.Millisecond, Usage: "pause between sample rounds"},
			&cli.DurationFlag{Name: "timeout", Value: 5 * time.Second, Usage: "wait for each expected event"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return run(ctx, options{
				URL:      cmd.String("url"),
				Players:  cmd.Int("players"),
				Samples:  cmd.Int("samples"),
				Interval: cmd.Duration("interval"),
				Timeout:  cmd.Duration("timeout"),
			}, os.Stdout)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "probe: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	if opts.Players < 1 {
		return errors.New("need at least one player")
	}

	host, err := dial(ctx, opts, "host")
	if err != nil {
		return err
	}
	defer host.conn.Close()

	if err := host.send(service.EventCreateRoom, nil); err != nil {
		return err
	}
	created, err := host.expect(service.EventRoomCreated)
	if err != nil {
		return err
	}
	var code string
	if err := json.Unmarshal(created.Data, &code); err != nil {
		return fmt.Errorf("decode room code: %w", err)
	}
	fmt.Fprintf(out, "room %s created\n", code)

	players := make([]*peer, 0, opts.Players)
	defer func() {
		for _, p := range players {
			p.conn.Close()
		}
	}()
	for i := 0; i < opts.Players; i++ {
		p, err := dial(ctx, opts, fmt.Sprintf("probe-%d", i+1))
		if err != nil {
			return err
		}
		players = append(players, p)

		if err := p.send(service.EventJoinRoom, service.JoinRequest{Name: p.name, RoomCode: code}); err != nil {
			return err
		}
		if _, err := p.expect(service.EventJoinedRoom); err != nil {
			return fmt.Errorf("%s join: %w", p.name, err)
		}
		fmt.Fprintf(out, "%s joined seat %d\n", p.name, i)
	}

	if err := host.send(service.EventStartGame, code); err != nil {
		return err
	}
	for _, p := range players {
		if _, err := p.expect(service.EventGameStarted); err != nil {
			return fmt.Errorf("%s start: %w", p.name, err)
		}
	}
	fmt.Fprintln(out, "game started")

	updates := 0
	for round := 0; round < opts.Samples; round++ {
		for i, p := range players {
			sample := service.Sample{Gamma: float64((i+1)*10 + round), Beta: float64(-(i + 1) * 5)}
			if err := p.send(service.EventGyroscopeData, service.GyroscopeRequest{RoomCode: code, Data: sample}); err != nil {
				return err
			}
			f, err := host.expect(service.EventUpdateBall)
			if err != nil {
				return fmt.Errorf("ball update: %w", err)
			}
			var ball service.BallUpdate
			if err := json.Unmarshal(f.Data, &ball); err != nil {
				return fmt.Errorf("decode ball update: %w", err)
			}
			updates++
			fmt.Fprintf(out, "round %d %s: ball gamma=%.2f beta=%.2f\n", round+1, p.name, ball.Data.Gamma, ball.Data.Beta)
		}

		if opts.Interval > 0 && round < opts.Samples-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(opts.Interval):
			}
		}
	}

	for _, p := range players {
		if err := p.send(service.EventLeaveRoom, code); err != nil {
			return err
		}
		if _, err := p.expect(service.EventLeftRoom); err != nil {
			return fmt.Errorf("%s leave: %w", p.name, err)
		}
	}

	fmt.Fprintf(out, "room %s: %d players, %d ball updates\n", code, len(players), updates)
	return nil
}

func dial(ctx context.Context, opts options, name string) (*peer, error) {
	dialCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s dial %s: %w", name, opts.URL, err)
	}
	return &peer{name: name, conn: conn, wait: opts.Timeout}, nil
}

func (p *peer) send(event string, data any) error {
	msg := map[string]any{"event": event}
	if data != nil {
		msg["data"] = data
	}
	if err := p.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("%s send %s: %w", p.name, event, err)
	}
	return nil
}

// expect reads frames until event arrives. An error event fails the wait.
func (p *peer) expect(event string) (frame, error) {
	deadline := time.Now().Add(p.wait)
	p.conn.SetReadDeadline(deadline)
	for {
		var f frame
		if err := p.conn.ReadJSON(&f); err != nil {
			return frame{}, fmt.Errorf("waiting for %s: %w", event, err)
		}
		switch f.Event {
		case event:
			return f, nil
		case service.EventError:
			var msg string
			json.Unmarshal(f.Data, &msg)
			return frame{}, fmt.Errorf("relay error: %s", msg)
		}
	}
}
