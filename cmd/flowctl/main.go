package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/MrEthical07/agentAuth/flow"
	"github.com/MrEthical07/agentAuth/internal/stores"
	"github.com/MrEthical07/agentAuth/storage"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:  "flowctl",
		Usage: "inspect and reset sign-in flow records stored in Redis",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "redis-addr",
				Value:   "localhost:6379",
				EnvVars: []string{"REDIS_ADDR"},
			},
			&cli.StringFlag{
				Name:    "redis-prefix",
				Usage:   "storage key namespace (storage.WithKeyPrefix)",
				EnvVars: []string{"AGENTAUTH_REDIS_PREFIX"},
			},
			&cli.StringFlag{
				Name:    "key-prefix",
				Usage:   "flow record key prefix",
				Value:   "auth",
				EnvVars: []string{"AGENTAUTH_STORAGE_KEY_PREFIX"},
			},
		},
	}
	app.Commands = []*cli.Command{
		{
			Name:      "get",
			Usage:     "print one flow record",
			ArgsUsage: "<channel> <user> <handler>",
			Action:    runGet,
		},
		{
			Name:      "list",
			Usage:     "list flow records, optionally narrowed to a channel and user",
			ArgsUsage: "[channel] [user]",
			Action:    runList,
		},
		{
			Name:      "reset",
			Usage:     "delete flow records of a user, or of one handler",
			ArgsUsage: "<channel> <user> [handler]",
			Action:    runReset,
		},
	}
	app.RunAndExitOnError()
}

type flowCtl struct {
	store     *storage.RedisStorage
	keyPrefix string
	out       io.Writer
	now       func() time.Time
}

func withFlowCtl(cctx *cli.Context, fn func(ctx context.Context, c *flowCtl) error) error {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{cctx.String("redis-addr")},
	})
	defer client.Close()

	c := &flowCtl{
		store:     storage.NewRedisStorage(client, storage.WithKeyPrefix(cctx.String("redis-prefix"))),
		keyPrefix: cctx.String("key-prefix"),
		out:       cctx.App.Writer,
		now:       time.Now,
	}
	return fn(cctx.Context, c)
}

func runGet(cctx *cli.Context) error {
	args := cctx.Args()
	if args.Len() != 3 {
		return cli.Exit("get needs <channel> <user> <handler>", 2)
	}
	return withFlowCtl(cctx, func(ctx context.Context, c *flowCtl) error {
		return c.get(ctx, args.Get(0), args.Get(1), args.Get(2))
	})
}

func runList(cctx *cli.Context) error {
	args := cctx.Args()
	return withFlowCtl(cctx, func(ctx context.Context, c *flowCtl) error {
		return c.list(ctx, args.Get(0), args.Get(1))
	})
}

func runReset(cctx *cli.Context) error {
	args := cctx.Args()
	if args.Len() < 2 {
		return cli.Exit("reset needs <channel> <user> [handler]", 2)
	}
	return withFlowCtl(cctx, func(ctx context.Context, c *flowCtl) error {
		n, err := c.reset(ctx, args.Get(0), args.Get(1), args.Get(2))
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "deleted %d record(s)\n", n)
		return nil
	})
}

// recordView is the printable form of a flow record. The user token is
// reported only by presence.
type recordView struct {
	Key               string    `json:"key"`
	Version           string    `json:"version"`
	Tag               flow.Tag  `json:"tag"`
	Expiration        time.Time `json:"expiration"`
	Expired           bool      `json:"expired"`
	Active            bool      `json:"active"`
	AttemptsRemaining int       `json:"attemptsRemaining"`
	HasToken          bool      `json:"hasToken"`
	ContinuationID    string    `json:"continuationActivityId,omitempty"`
	Error             string    `json:"error,omitempty"`
}

func (c *flowCtl) view(key string, rec storage.Record) recordView {
	v := recordView{Key: key, Version: string(rec.Version)}
	state, err := flow.Decode(rec.Data)
	if err == nil {
		err = state.Validate()
	}
	if err != nil {
		v.Error = err.Error()
		return v
	}
	now := c.now()
	v.Tag = state.Tag
	v.Expiration = time.Unix(state.Expiration, 0).UTC()
	v.Expired = state.IsExpired(now)
	v.Active = state.IsActive(now)
	v.AttemptsRemaining = state.AttemptsRemaining
	v.HasToken = state.UserToken != ""
	if state.ContinuationActivity != nil {
		v.ContinuationID = state.ContinuationActivity.ID
	}
	return v
}

func (c *flowCtl) get(ctx context.Context, channelID, userID, handlerID string) error {
	key := stores.Key(c.keyPrefix, channelID, userID, handlerID)
	records, err := c.store.Read(ctx, []string{key})
	if err != nil {
		return err
	}
	rec, ok := records[key]
	if !ok {
		return cli.Exit(fmt.Sprintf("no record at %s", key), 1)
	}
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(c.view(key, rec))
}

func (c *flowCtl) pattern(channelID, userID string) string {
	parts := []string{c.keyPrefix, "*", "*", "*"}
	if channelID != "" {
		parts[1] = channelID
	}
	if userID != "" {
		parts[2] = userID
	}
	return strings.Join(parts, "/")
}

func (c *flowCtl) keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	err := c.store.Scan(ctx, pattern, func(key string) error {
		keys = append(keys, key)
		return nil
	})
	return keys, err
}

func (c *flowCtl) list(ctx context.Context, channelID, userID string) error {
	keys, err := c.keys(ctx, c.pattern(channelID, userID))
	if err != nil || len(keys) == 0 {
		return err
	}
	records, err := c.store.Read(ctx, keys)
	if err != nil {
		return err
	}
	for _, key := range keys {
		rec, ok := records[key]
		if !ok {
			continue
		}
		v := c.view(key, rec)
		if v.Error != "" {
			fmt.Fprintf(c.out, "%s\tcorrupt\t%s\n", key, v.Error)
			continue
		}
		fmt.Fprintf(c.out, "%s\t%s\tattempts=%d\tactive=%t\n", key, v.Tag, v.AttemptsRemaining, v.Active)
	}
	return nil
}

func (c *flowCtl) reset(ctx context.Context, channelID, userID, handlerID string) (int, error) {
	var keys []string
	if handlerID != "" {
		keys = []string{stores.Key(c.keyPrefix, channelID, userID, handlerID)}
	} else {
		var err error
		keys, err = c.keys(ctx, stores.Key(c.keyPrefix, channelID, userID, "*"))
		if err != nil {
			return 0, err
		}
	}
	if len(keys) == 0 {
		return 0, nil
	}
	records, err := c.store.Read(ctx, keys)
	if err != nil {
		return 0, err
	}
	if err := c.store.Delete(ctx, keys); err != nil {
		return 0, err
	}
	return len(records), nil
}
